package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/db"
	"github.com/zulandar/dialbook/internal/logging"
	"github.com/zulandar/dialbook/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func newBookingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booking",
		Short: "Booking request commands",
	}

	cmd.AddCommand(newBookingCreateCmd())
	cmd.AddCommand(newBookingListCmd())
	cmd.AddCommand(newBookingShowCmd())
	cmd.AddCommand(newBookingCallCmd())
	return cmd
}

func newBookingCreateCmd() *cobra.Command {
	var (
		configPath string
		owner      string
		category   string
		provider   string
		phone      string
		dates      []string
		buckets    []string
		at         string
		notes      string
		reason     string
		partySize  int
		service    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a booking request",
		Long: "Creates a pending booking request. Give either --at for an exact time, or " +
			"--date and --bucket (morning, afternoon, evening) for a window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookingCreate(cmd, configPath, at, booking.CreateOpts{
				OwnerID:       owner,
				Category:      category,
				ProviderName:  provider,
				ProviderPhone: phone,
				Dates:         dates,
				Buckets:       buckets,
				Notes:         notes,
				Details: models.BookingDetails{
					Reason:    reason,
					PartySize: partySize,
					Service:   service,
				},
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to dialbook config file")
	cmd.Flags().StringVar(&owner, "owner", "", "owning user id (required)")
	cmd.Flags().StringVar(&category, "category", "", "medical, restaurant or hairdresser (required)")
	cmd.Flags().StringVar(&provider, "provider", "", "provider name (required)")
	cmd.Flags().StringVar(&phone, "phone", "", "provider phone number in E.164 form (required)")
	cmd.Flags().StringSliceVar(&dates, "date", nil, "candidate date YYYY-MM-DD (repeatable)")
	cmd.Flags().StringSliceVar(&buckets, "bucket", nil, "time-of-day bucket (repeatable)")
	cmd.Flags().StringVar(&at, "at", "", `exact time "YYYY-MM-DD HH:MM" in the scheduling time zone, or RFC 3339`)
	cmd.Flags().StringVar(&notes, "notes", "", "free-text availability notes")
	cmd.Flags().StringVar(&reason, "reason", "", "visit reason (medical)")
	cmd.Flags().IntVar(&partySize, "party-size", 0, "number of guests (restaurant)")
	cmd.Flags().StringVar(&service, "service", "", "requested service (hairdresser)")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func runBookingCreate(cmd *cobra.Command, configPath, at string, opts booking.CreateOpts) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if at != "" {
		t, err := parseExactTime(at, cfg.Location())
		if err != nil {
			return err
		}
		opts.ExactTime = &t
	}

	store, err := booking.NewStore(booking.StoreOpts{DB: gormDB})
	if err != nil {
		return err
	}
	req, err := store.Create(context.Background(), opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created booking %s (%s)\n", req.ID, req.Status)
	return nil
}

// parseExactTime accepts RFC 3339 or a wall-clock time in loc.
func parseExactTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(timeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: want %q or RFC 3339", s, timeLayout)
	}
	return t, nil
}

func newBookingListCmd() *cobra.Command {
	var (
		configPath string
		owner      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List booking requests",
		Long:  "Lists one owner's booking requests, newest first. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookingList(cmd, configPath, owner)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to dialbook config file")
	cmd.Flags().StringVar(&owner, "owner", "", "owning user id (required)")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func runBookingList(cmd *cobra.Command, configPath, owner string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	store, err := booking.NewStore(booking.StoreOpts{DB: gormDB})
	if err != nil {
		return err
	}
	reqs, err := store.ListByOwner(context.Background(), owner)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(reqs) == 0 {
		fmt.Fprintln(out, "No booking requests found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tPROVIDER\tSTATUS\tCREATED")
	for _, r := range reqs {
		status := r.Status
		if r.NeedsReview {
			status += "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Category, truncate(r.ProviderName, 30), status, r.CreatedAt.Format(timeLayout))
	}
	w.Flush()
	return nil
}

func newBookingShowCmd() *cobra.Command {
	var (
		configPath string
		owner      string
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show booking request details",
		Long:  "Displays a booking request with its outcome, calendar reference and call transcript.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookingShow(cmd, configPath, owner, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to dialbook config file")
	cmd.Flags().StringVar(&owner, "owner", "", "owning user id (required)")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func runBookingShow(cmd *cobra.Command, configPath, owner, id string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	store, err := booking.NewStore(booking.StoreOpts{DB: gormDB})
	if err != nil {
		return err
	}
	r, err := store.Get(context.Background(), id, owner)
	if err != nil {
		return err
	}

	loc := cfg.Location()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", r.ID)
	fmt.Fprintf(out, "Owner:       %s\n", r.OwnerID)
	fmt.Fprintf(out, "Category:    %s\n", r.Category)
	fmt.Fprintf(out, "Provider:    %s (%s)\n", r.ProviderName, r.ProviderPhone)
	fmt.Fprintf(out, "Status:      %s\n", r.Status)
	if r.NeedsReview {
		fmt.Fprintln(out, "Review:      needed")
	}
	fmt.Fprintf(out, "Wanted:      %s\n", describePreference(r.Preference, loc))
	if r.CallID != "" {
		fmt.Fprintf(out, "Call:        %s\n", r.CallID)
	}
	if r.ConfirmedAt != nil {
		fmt.Fprintf(out, "Confirmed:   %s\n", r.ConfirmedAt.In(loc).Format(timeLayout))
	}
	if r.EventRef != nil {
		fmt.Fprintf(out, "Event:       %s\n", *r.EventRef)
	}
	if r.FailureReason != "" {
		fmt.Fprintf(out, "Reason:      %s\n", r.FailureReason)
	}
	fmt.Fprintf(out, "Created:     %s\n", r.CreatedAt.In(loc).Format(timeLayout))
	fmt.Fprintf(out, "Updated:     %s\n", r.UpdatedAt.In(loc).Format(timeLayout))

	if r.Transcript != nil && *r.Transcript != "" {
		fmt.Fprintf(out, "\nTranscript:\n%s\n", *r.Transcript)
	}
	return nil
}

func describePreference(p models.AvailabilityPreference, loc *time.Location) string {
	if p.ExactTime != nil {
		return p.ExactTime.In(loc).Format(timeLayout)
	}
	var buckets []string
	if p.Morning {
		buckets = append(buckets, "morning")
	}
	if p.Afternoon {
		buckets = append(buckets, "afternoon")
	}
	if p.Evening {
		buckets = append(buckets, "evening")
	}
	s := strings.Join(p.Dates, ", ")
	if len(buckets) > 0 {
		s += " (" + strings.Join(buckets, ", ") + ")"
	}
	if p.Notes != "" {
		s += "; " + p.Notes
	}
	return s
}

func newBookingCallCmd() *cobra.Command {
	var (
		configPath string
		owner      string
	)

	cmd := &cobra.Command{
		Use:   "call <id>",
		Short: "Place the call for a pending booking request",
		Long: "Places the outbound call for a pending booking request. The conversation " +
			"itself is driven by the webhooks of a running dialbook serve.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookingCall(cmd, configPath, owner, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to dialbook config file")
	cmd.Flags().StringVar(&owner, "owner", "", "owning user id (required)")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func runBookingCall(cmd *cobra.Command, configPath, owner, id string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, gormDB, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.bookings.Get(ctx, id, owner); err != nil {
		return err
	}
	req, err := a.orchestrator.Initiate(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Calling %s for booking %s (call %s)\n", req.ProviderName, req.ID, req.CallID)
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
