package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chargee-energy/chargee-developer-playground/pkg/cache"
	"github.com/chargee-energy/chargee-developer-playground/pkg/engine"
	"github.com/chargee-energy/chargee-developer-playground/pkg/lister"
	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
)

// withApp wires an app for the duration of one command.
func withApp(opts *rootOptions, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), opts)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func newGroupsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the groups visible to the token",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			groups, err := a.client.ListGroups(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), groups)
		}),
	}
}

func newAddressesCommand(opts *rootOptions) *cobra.Command {
	var (
		page    int
		perPage int
		search  string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "addresses <group>",
		Short: "Show a page of a group's addresses",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			l := a.engine.Lister()

			var (
				listing lister.Listing
				err     error
			)
			if page <= 1 {
				listing, err = l.FirstPage(cmd.Context(), args[0], perPage, !noCache)
			} else {
				listing, err = l.Page(cmd.Context(), args[0], page, perPage)
			}
			if err != nil {
				return err
			}

			listing.Items = lister.FilterParents(listing.Items, search)
			return writeJSON(cmd.OutOrStdout(), struct {
				lister.Listing
				Pages int `json:"pages"`
			}{listing, lister.TotalPages(listing.Total, len(listing.Items), perPage)})
		}),
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number (1-based)")
	cmd.Flags().IntVar(&perPage, "per-page", lister.DefaultPerPage, "addresses per page")
	cmd.Flags().StringVar(&search, "search", "", "filter by uuid, serial number or box code")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the cached first page")

	return cmd
}

func newAnalyzeCommand(opts *rootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "analyze <group>",
		Short: "Aggregate device counts for a group",
		Long: `Aggregate device counts for every address of a group.

A valid cached tally is printed without contacting the remote service unless
--refresh is given.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			groupID := args[0]

			if !refresh {
				result, _, err := a.engine.CachedResult(cmd.Context(), groupID)
				if err == nil {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				if !errors.Is(err, cache.ErrCacheMiss) {
					a.logger.Warn().Err(err).Str("group_id", groupID).Msg("Cache get error")
				}
			}

			report, err := a.engine.Run(cmd.Context(), groupID, progressPrinter(cmd.ErrOrStderr(), opts.quiet))
			if err != nil {
				return errors.New(engine.UserMessage(err, ""))
			}
			if report.Dropped {
				return fmt.Errorf("an analytics run for %s is already active", groupID)
			}
			return writeJSON(cmd.OutOrStdout(), report.Result)
		}),
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached tally")

	return cmd
}

func newInvertersCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inverters <group>",
		Short: "List the steerable solar inverters of a group",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			inverters, err := a.engine.SteerableInverters(cmd.Context(), args[0], progressPrinter(cmd.ErrOrStderr(), opts.quiet))
			if err != nil {
				return errors.New(engine.UserMessage(err, model.CategorySolarInverter))
			}
			return writeJSON(cmd.OutOrStdout(), inverters)
		}),
	}
}

func newDevicesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices <group> <category>",
		Short: "List the devices of one category across a group",
		Long: `List the devices of one category across every address of a group.

Categories: vehicles, solarInverters, batteries, hvacs, chargers,
smartMeters, gridConnections, and sparkies for the addresses with a linked
Sparky.`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			groupID := args[0]

			if args[1] == "sparkies" {
				sparkies, err := a.engine.Sparkies(cmd.Context(), groupID)
				if err != nil {
					return errors.New(engine.UserMessage(err, ""))
				}
				return writeJSON(cmd.OutOrStdout(), sparkies)
			}

			category, err := model.ParseCategory(args[1])
			if err != nil {
				return err
			}

			devices, err := a.engine.CategoryDevices(cmd.Context(), groupID, category)
			if err != nil {
				return errors.New(engine.UserMessage(err, category))
			}
			return writeJSON(cmd.OutOrStdout(), devices)
		}),
	}
}

func newScheduleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <group> <spec.json>",
		Short: "Create a schedule on every steerable inverter of a group",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read schedule: %w", err)
			}
			if !json.Valid(raw) {
				return fmt.Errorf("schedule %s is not valid JSON", args[1])
			}

			inverters, err := a.engine.SteerableInverters(cmd.Context(), args[0], progressPrinter(cmd.ErrOrStderr(), opts.quiet))
			if err != nil {
				return errors.New(engine.UserMessage(err, model.CategorySolarInverter))
			}

			report, err := a.engine.Schedule(cmd.Context(), inverters, model.ScheduleSpec(raw))
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d schedules failed", report.Failed, report.Failed+report.Succeeded)
			}
			return nil
		}),
	}
}

func newInspectCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <serial|address>",
		Short: "Show a Sparky or the devices of one address",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			inspection, err := a.engine.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), inspection)
		}),
	}
}
