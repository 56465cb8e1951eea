package shell

import (
	"context"
	"fmt"
	"io"
	"strings"

	"room-triage/models"
	"room-triage/services"
	"room-triage/storage"
	"room-triage/triage"
)

// Deps are the collaborators the triage commands act on.
type Deps struct {
	Orchestrator *triage.Orchestrator
	Repo         *storage.Repository
	Insights     *services.InsightService
	ExportPath   string
}

// RegisterTriage installs the triage command set on s.
func (s *Shell) RegisterTriage(d Deps) {
	out := s.out
	section := func(items []string) {
		fmt.Fprintln(out, strings.Join(items, "\n\n"))
	}

	s.Register(
		Command{Name: "help", Help: "print this menu", Run: func(context.Context, []string) error {
			s.PrintCommands()
			return nil
		}},
		Command{Name: "get messages", Help: "scrape inbox", Run: func(ctx context.Context, _ []string) error {
			n, err := d.Orchestrator.HarvestMessages(ctx)
			fmt.Fprintf(out, "%d messages harvested\n", n)
			return err
		}},
		Command{Name: "get properties", Help: "scrape message links for listing data (new only)", Run: func(ctx context.Context, _ []string) error {
			sum, err := d.Orchestrator.ProcessMessages(ctx)
			fmt.Fprintf(out, "%d messages: %d scraped, %d accepted, %d rejected, %d skipped\n",
				sum.Messages, sum.Extracted, sum.Accepted, sum.Rejected, sum.Skipped)
			return err
		}},
		Command{Name: "get distances", Help: "calculate distances (new only)", Run: func(ctx context.Context, _ []string) error {
			sum, err := d.Orchestrator.ScoreListings(ctx)
			fmt.Fprintf(out, "%d scored, %d rejected, %d already scored\n", sum.Scored, sum.Rejected, sum.Cached)
			return err
		}},
		Command{Name: "list messages", Help: "print messages", Run: func(ctx context.Context, _ []string) error {
			messages, err := d.Repo.Messages(ctx)
			if err != nil {
				return err
			}
			items := make([]string, len(messages))
			for i := range messages {
				items[i] = models.Pretty(messages[i].Fields())
			}
			section(items)
			return nil
		}},
		Command{Name: "list properties", Help: "print listings", Run: func(ctx context.Context, _ []string) error {
			listings, err := d.Repo.Listings(ctx)
			if err != nil {
				return err
			}
			items := make([]string, len(listings))
			for i := range listings {
				items[i] = models.Pretty(listings[i].Fields())
			}
			section(items)
			return nil
		}},
		Command{Name: "list distances", Help: "print scored listings, best first", Run: func(ctx context.Context, _ []string) error {
			ranked, scores, err := d.Orchestrator.Ranked(ctx)
			if err != nil {
				return err
			}
			items := make([]string, len(ranked))
			for i := range ranked {
				fields := append([]models.Field{{Label: "score", Value: fmt.Sprint(scores[i])}}, ranked[i].Fields()...)
				items[i] = models.Pretty(fields)
			}
			section(items)
			return nil
		}},
		Command{Name: "clear", Help: "delete all data", Run: func(ctx context.Context, _ []string) error {
			if err := d.Repo.ClearMessages(ctx); err != nil {
				return err
			}
			if err := d.Repo.ClearListings(ctx); err != nil {
				return err
			}
			return d.Repo.ClearScored(ctx)
		}},
		Command{Name: "clear messages", Help: "delete messages", Run: func(ctx context.Context, _ []string) error {
			return d.Repo.ClearMessages(ctx)
		}},
		Command{Name: "clear properties", Help: "delete listings", Run: func(ctx context.Context, _ []string) error {
			return d.Repo.ClearListings(ctx)
		}},
		Command{Name: "clear distances", Help: "delete scored listings", Run: func(ctx context.Context, _ []string) error {
			return d.Repo.ClearScored(ctx)
		}},
		Command{Name: "clear session", Help: "delete session cookies (will log in again)", Run: func(ctx context.Context, _ []string) error {
			return d.Repo.ClearCookies(ctx)
		}},
		Command{Name: "scrape", Help: "scrape, score and display a listing", Args: []string{"listing url or id"},
			Run: func(ctx context.Context, args []string) error {
				s, reason, err := d.Orchestrator.Inspect(ctx, args[0])
				if err != nil {
					return err
				}
				verdict := "suitable"
				if !reason.OK() {
					verdict = "rejected: " + string(reason)
				}
				fields := append([]models.Field{{Label: "verdict", Value: verdict}}, s.Fields()...)
				fmt.Fprintln(out, models.Pretty(fields))
				return nil
			}},
		Command{Name: "remove", Help: "remove a listing from the database", Args: []string{"listing url"},
			Run: func(ctx context.Context, args []string) error {
				return removeListing(ctx, d, out, args[0], false)
			}},
		Command{Name: "mark", Help: "remove a listing and mark it unsuitable", Args: []string{"listing url"},
			Run: func(ctx context.Context, args []string) error {
				return removeListing(ctx, d, out, args[0], true)
			}},
		Command{Name: "name", Help: "set sender name", Args: []string{"listing url", "name"},
			Run: func(ctx context.Context, args []string) error {
				n, err := d.Orchestrator.SetSender(ctx, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d records updated\n", n)
				return nil
			}},
		Command{Name: "search", Help: "scrape a search results page", Args: []string{"page url"},
			Run: func(ctx context.Context, args []string) error {
				saved, err := d.Orchestrator.ScrapeSearch(ctx, args[0])
				items := make([]string, len(saved))
				for i := range saved {
					items[i] = models.Pretty(saved[i].Fields())
				}
				section(items)
				return err
			}},
		Command{Name: "report", Help: "print a summary of the scored listings", Run: func(ctx context.Context, _ []string) error {
			scored, err := d.Repo.ScoredListings(ctx)
			if err != nil {
				return err
			}
			d.Insights.Print(out, d.Insights.Generate(scored))
			return nil
		}},
		Command{Name: "export", Help: "write scored listings to CSV", Run: func(ctx context.Context, args []string) error {
			path := d.ExportPath
			if len(args) > 0 {
				path = args[0]
			}
			n, err := d.Orchestrator.Export(ctx, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d scored listings written to %s\n", n, path)
			return nil
		}},
		Command{Name: "quit", Help: "quit", Run: func(context.Context, []string) error {
			return ErrQuit
		}},
	)
}

func removeListing(ctx context.Context, d Deps, out io.Writer, input string, mark bool) error {
	res, err := d.Orchestrator.Remove(ctx, input, mark)
	if res.Any() {
		fmt.Fprintf(out, "removed %d message link(s), %d message(s), %d listing(s), %d scored listing(s)\n",
			res.MessageLinks, res.Messages, res.Listings, res.Scored)
	}
	return err
}
