package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/hyperengineering/sidecar/internal/types"
	"github.com/hyperengineering/sidecar/internal/validation"
	"github.com/spf13/cobra"
)

var recordFile string

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Submit events to the ledger",
	Long: `Read JSON event envelopes, one per line, and submit each to the ledger.
Events are read from stdin unless --file is given. Each result is printed as
one JSON object; rejected events do not stop the stream.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordFile, "file", "f", "",
		"Read events from a file instead of stdin")
}

type recordResult struct {
	OK     bool               `json:"ok"`
	ID     string             `json:"id,omitempty"`
	Audit  types.AuditType    `json:"audit_type,omitempty"`
	Errors []types.FieldError `json:"errors,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func runRecord(cmd *cobra.Command, args []string) error {
	led, err := openLedger()
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if recordFile != "" {
		f, err := os.Open(recordFile)
		if err != nil {
			return fmt.Errorf("open events file: %w", err)
		}
		defer f.Close()
		in = f
	}

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	rejected := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		res := submit(led, line)
		if !res.OK {
			rejected++
		}
		if err := printJSON(out, res); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	if rejected > 0 {
		return fmt.Errorf("%d event(s) rejected", rejected)
	}
	return nil
}

func submit(led ledgerApplier, line []byte) recordResult {
	ev, errs := validation.DecodeEvent(line)
	if len(errs) > 0 {
		return recordResult{OK: false, Audit: types.AuditValidationFailure, Errors: errs}
	}
	id, err := led.Apply(ev)
	if err != nil {
		if re := types.Rejection(err); re != nil {
			return recordResult{OK: false, Audit: re.Audit, Errors: re.Errors}
		}
		return recordResult{OK: false, Error: err.Error()}
	}
	return recordResult{OK: true, ID: id}
}

// ledgerApplier is the slice of the ledger surface record needs; tests
// substitute their own.
type ledgerApplier interface {
	Apply(ev types.Event) (string, error)
}
