package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/docket"
)

func (a *app) showCmd() *cobra.Command {
	var jurisdiction string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show imported records",
	}
	cmd.PersistentFlags().StringVar(&jurisdiction, "jurisdiction", "", "ocd-jurisdiction id (overrides import.jurisdiction)")

	bill := &cobra.Command{
		Use:   "bill <session> <identifier>",
		Short: "Show a bill with its actions, sponsors and documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("jurisdiction") {
				a.cfg.Import.Jurisdiction = jurisdiction
			}
			return a.runShowBill(cmd, args[0], args[1])
		},
	}
	org := &cobra.Command{
		Use:   "organization <id>",
		Short: "Show an organization with its names and memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runShow(cmd, "show organization", func(q *docket.QueryBuilder) (any, error) {
				d, err := q.Organization(cmd.Context(), args[0])
				if err != nil || d == nil {
					return nil, err
				}
				return toCLIOrganization(d), nil
			})
		},
	}
	person := &cobra.Command{
		Use:   "person <id>",
		Short: "Show a person with their names and memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runShow(cmd, "show person", func(q *docket.QueryBuilder) (any, error) {
				d, err := q.Person(cmd.Context(), args[0])
				if err != nil || d == nil {
					return nil, err
				}
				return toCLIPerson(d), nil
			})
		},
	}
	cmd.AddCommand(bill, org, person)
	return cmd
}

func (a *app) runShowBill(cmd *cobra.Command, session, identifier string) error {
	jurisdiction := a.cfg.Import.Jurisdiction
	if jurisdiction == "" {
		return a.outputError(cmd, "show bill", errors.New("no jurisdiction: pass --jurisdiction or set import.jurisdiction"))
	}
	return a.runShow(cmd, "show bill", func(q *docket.QueryBuilder) (any, error) {
		d, err := q.Bill(cmd.Context(), jurisdiction, session, identifier)
		if err != nil || d == nil {
			return nil, err
		}
		return toCLIBill(d), nil
	})
}

// runShow opens the database read-side and outputs what fetch returns. A
// nil result is reported as not found.
func (a *app) runShow(cmd *cobra.Command, command string, fetch func(*docket.QueryBuilder) (any, error)) error {
	dsn := a.cfg.Database.DSN
	if err := requireDB(dsn); err != nil {
		return a.outputError(cmd, command, err)
	}
	engine, err := docket.New(dsn, docket.WithLogger(a.log))
	if err != nil {
		return a.outputError(cmd, command, fmt.Errorf("opening database: %w", err))
	}
	defer engine.Close()

	result, err := fetch(engine.Query())
	if err != nil {
		return a.outputError(cmd, command, err)
	}
	if result == nil {
		return a.outputError(cmd, command, errors.New("not found"))
	}
	return a.outputResult(cmd.OutOrStdout(), CLIResult{Command: command, Results: result})
}
