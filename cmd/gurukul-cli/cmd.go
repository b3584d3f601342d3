package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/internal/progresssync"
)

var errHelp = errors.New("help provided")

type courseFetcher interface {
	Course(ctx context.Context, courseID string) (*models.Course, error)
}

type commandLine struct {
	api     progresssync.API
	courses courseFetcher
	cache   *progresssync.Cache
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  courses                                 - list enrolled courses with local changes applied")
	fmt.Fprintln(cli.out, "  toggle -course ID -lecture ID [-undo]   - mark a lecture complete (or incomplete)")
	fmt.Fprintln(cli.out, "  sync                                    - reconcile with the server now")
	fmt.Fprintln(cli.out, "  notifications [-unread] [-limit N]      - show the notification feed")
	fmt.Fprintln(cli.out, "  read -id ID                             - mark a notification read")
	fmt.Fprintln(cli.out, "  delete -id ID                           - delete a notification")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "courses":
		if _, err := cli.cache.Reconcile(ctx, false); err != nil {
			return err
		}
		items, err := cli.api.Enrolled(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COURSE\tTITLE\tPROGRESS\tSTATUS\tLAST ACCESSED")
		for _, item := range cli.cache.Overlay(items) {
			fmt.Fprintf(w, "%s\t%s\t%d%% (%d/%d)\t%s\t%s\n",
				item.Course.ID, item.Course.Title, item.Progress, item.CompletedLectures, item.TotalLectures, item.Status, item.LastAccessed)
		}
		return w.Flush()

	case "toggle":
		cmd := flag.NewFlagSet("toggle", flag.ContinueOnError)
		cmd.SetOutput(cli.out)
		courseID := cmd.String("course", "", "Course id.")
		lectureID := cmd.String("lecture", "", "Lecture id.")
		undo := cmd.Bool("undo", false, "Mark the lecture incomplete instead.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *courseID == "" || *lectureID == "" {
			cmd.Usage()
			return errHelp
		}
		course, err := cli.courses.Course(ctx, *courseID)
		if err != nil {
			return err
		}
		local, err := cli.cache.Toggle(ctx, course, *lectureID, !*undo)
		if err != nil {
			return err
		}
		cli.cache.Wait()
		fmt.Fprintf(cli.out, "%s: %d%% (%d/%d) %s\n", course.Title, local.Progress, len(local.CompletedLectureIDs), local.TotalLectures, local.Status)
		if pending := len(cli.cache.Pending()); pending > 0 {
			fmt.Fprintf(cli.out, "%d change(s) waiting to sync\n", pending)
		}
		return nil

	case "sync":
		if _, err := cli.cache.Reconcile(ctx, true); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "synced; %d change(s) pending\n", len(cli.cache.Pending()))
		return nil

	case "notifications":
		cmd := flag.NewFlagSet("notifications", flag.ContinueOnError)
		cmd.SetOutput(cli.out)
		unread := cmd.Bool("unread", false, "Only unread notifications.")
		limit := cmd.Int("limit", 20, "Page size.")
		page := cmd.Int("page", 1, "Page number.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		feed, err := cli.cache.Feed(ctx, progresssync.NotificationQuery{Page: *page, Limit: *limit, UnreadOnly: *unread})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%d unread\n", feed.UnreadCount)
		w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
		for _, item := range feed.Items {
			mark := " "
			if !item.Read {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, item.ID, item.Title, item.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()

	case "read", "delete":
		cmd := flag.NewFlagSet(args[1], flag.ContinueOnError)
		cmd.SetOutput(cli.out)
		id := cmd.String("id", "", "Notification id.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *id == "" {
			cmd.Usage()
			return errHelp
		}
		if args[1] == "read" {
			return cli.cache.MarkRead(ctx, *id)
		}
		return cli.cache.Delete(ctx, *id)

	default:
		cli.printUsage()
		return errHelp
	}
}
