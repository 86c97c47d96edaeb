package transport

import (
	"io"
	"sync/atomic"
)

// progressReader reports bytes read to a callback. It keeps the wrapped
// file's name so telego uploads it under that name.
type progressReader struct {
	r     io.Reader
	name  string
	total int64
	sent  atomic.Int64
	fn    func(sent, total int64)
}

func newProgressReader(r io.Reader, name string, total int64, fn func(sent, total int64)) *progressReader {
	return &progressReader{r: r, name: name, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.fn(p.sent.Add(int64(n)), p.total)
	}
	return n, err
}

func (p *progressReader) Name() string { return p.name }
