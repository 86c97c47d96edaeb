package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"vidup/internal/app"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Ledger references accepted by the commands below are a path to an existing
// file, a full content hash, or an unambiguous prefix of an uploaded hash.

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and edit the upload ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded videos, newest first",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "ListUploads", app.ReadOnly())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		records := a.ListUploads()
		if len(records) == 0 {
			fmt.Println("Ledger is empty.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %s  %8s  %s\n",
				r.Hash.Short(),
				r.UploadedAt.Local().Format("2006-01-02 15:04:05"),
				humanize.Bytes(uint64(r.FileSize)),
				r.Filename,
			)
		}
		fmt.Printf("%d upload(s)\n", len(records))
		return nil
	},
}

var ledgerInfoCmd = &cobra.Command{
	Use:   "info REF",
	Short: "Show an upload record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "UploadInfo", app.ReadOnly())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		hash, rec, dups, ok, err := a.UploadInfo(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Hash:      %s\n", hash)
		if ok {
			fmt.Printf("Filename:  %s\n", rec.Filename)
			fmt.Printf("Path:      %s\n", rec.SourcePath)
			fmt.Printf("Size:      %s\n", humanize.Bytes(uint64(rec.FileSize)))
			fmt.Printf("Uploaded:  %s (%s)\n", rec.UploadedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(rec.UploadedAt))
		} else {
			fmt.Println("Not uploaded.")
		}
		for _, d := range dups {
			fmt.Printf("Duplicate: %s\n", d)
		}
		return nil
	},
}

var ledgerRemoveCmd = &cobra.Command{
	Use:   "remove REF",
	Short: "Forget an upload so the video can be sent again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "RemoveUpload")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		removed, err := a.RemoveUpload(args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Println("No upload recorded for that reference.")
			return nil
		}
		fmt.Println("Removed.")
		return nil
	},
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every upload",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm("Forget every recorded upload?") {
			fmt.Println("Aborted.")
			return nil
		}

		a, err := newApp(cmd, "ClearLedger")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.ClearLedger(); err != nil {
			return err
		}
		fmt.Println("Ledger cleared.")
		return nil
	},
}

var ledgerDupesCmd = &cobra.Command{
	Use:   "dupes REF",
	Short: "List content marked as a duplicate of REF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Duplicates", app.ReadOnly())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		hash, dups, err := a.Duplicates(args[0])
		if err != nil {
			return err
		}
		if len(dups) == 0 {
			fmt.Printf("No duplicates of %s.\n", hash.Short())
			return nil
		}
		for _, d := range dups {
			fmt.Println(d)
		}
		return nil
	},
}

var ledgerMarkDupCmd = &cobra.Command{
	Use:   "mark-dup REF OF",
	Short: "Record that REF is the same video as OF",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "MarkDuplicate")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.MarkDuplicate(args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Marked as duplicate.")
		return nil
	},
}

var ledgerUnmarkDupCmd = &cobra.Command{
	Use:   "unmark-dup REF OF",
	Short: "Remove a duplicate mark",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "UnmarkDuplicate")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		changed, err := a.UnmarkDuplicate(args[0], args[1])
		if err != nil {
			return err
		}
		if !changed {
			fmt.Println("They were not marked as duplicates.")
			return nil
		}
		fmt.Println("Duplicate mark removed.")
		return nil
	},
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the ledger with a JSON ledger document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "ImportLedger")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.ImportLedger(args[0]); err != nil {
			return err
		}
		fmt.Printf("Imported %d upload(s).\n", len(a.ListUploads()))
		return nil
	},
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Write the ledger document to FILE or stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "ExportLedger", app.ReadOnly())
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if len(args) == 0 {
			return a.ExportLedger(os.Stdout)
		}
		f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		if err := a.ExportLedger(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

var ledgerRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local ledger with the latest vault snapshot",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "RestoreLedger")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		version, err := a.RestoreLedger(passphrase)
		if err != nil {
			return err
		}
		fmt.Printf("Restored snapshot #%d (%d upload(s)).\n", version, len(a.ListUploads()))
		return nil
	},
}

// readPassphrase prompts on stderr and reads a line without echo.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("a passphrase is required and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// readNewPassphrase asks for a passphrase twice.
func readNewPassphrase() (string, error) {
	first, err := readPassphrase("New passphrase for the ledger key: ")
	if err != nil {
		return "", err
	}
	second, err := readPassphrase("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerInfoCmd)
	ledgerCmd.AddCommand(ledgerRemoveCmd)
	ledgerCmd.AddCommand(ledgerClearCmd)
	ledgerClearCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	ledgerCmd.AddCommand(ledgerDupesCmd)
	ledgerCmd.AddCommand(ledgerMarkDupCmd)
	ledgerCmd.AddCommand(ledgerUnmarkDupCmd)
	ledgerCmd.AddCommand(ledgerImportCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)
	ledgerCmd.AddCommand(ledgerRestoreCmd)
}
