package main

import (
	"context"
	"fmt"

	"github.com/hyperengineering/sidecar/internal/audit"
	"github.com/hyperengineering/sidecar/internal/auditdb"
	"github.com/spf13/cobra"
)

var auditDBPathOverride string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Work with the audit log and its post-mortem index",
}

func init() {
	auditCmd.PersistentFlags().StringVar(&auditDBPathOverride, "db", "",
		"Audit index path (overrides config and SIDECAR_AUDIT_DB_PATH)")

	auditCmd.AddCommand(auditIndexCmd)
	auditCmd.AddCommand(auditFailuresCmd)
}

func openIndex() (*auditdb.DB, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	dbPath := cfg.AuditDB.Path
	if auditDBPathOverride != "" {
		dbPath = auditDBPathOverride
	}
	auditPath := cfg.AuditPath()
	if auditPathOverride != "" {
		auditPath = auditPathOverride
	}
	db, err := auditdb.Open(dbPath)
	if err != nil {
		return nil, "", err
	}
	return db, auditPath, nil
}

var auditIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the sqlite index from the audit file",
	Args:  cobra.NoArgs,
	RunE:  runAuditIndex,
}

func runAuditIndex(cmd *cobra.Command, args []string) error {
	db, auditPath, err := openIndex()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := audit.ReadFile(auditPath)
	if err != nil {
		return err
	}
	n, err := db.Rebuild(context.Background(), entries)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d audit entries\n", n)
	return nil
}

var auditFailuresCmd = &cobra.Command{
	Use:   "failures [id]",
	Short: "Query indexed failure entries, optionally for one entity id",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditFailures,
}

func runAuditFailures(cmd *cobra.Command, args []string) error {
	db, _, err := openIndex()
	if err != nil {
		return err
	}
	defer db.Close()

	id := ""
	if len(args) == 1 {
		id = args[0]
	}
	entries, err := db.Failures(context.Background(), id)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), entries)
}
