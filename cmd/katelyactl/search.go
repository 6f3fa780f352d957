package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/providers/hls"
)

func (c *cli) searchCmd() *cobra.Command {
	var (
		user         string
		includeAdult string
		aggregate    bool
		maxPage      int
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Run a federated search against the configured sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxPage > 0 {
				c.cfg.Site.SearchDownstreamMaxPage = maxPage
			}
			components, err := c.build(cmd)
			if err != nil {
				return err
			}
			defer components.Close()

			request := domain.SearchRequest{
				Query:   strings.Join(args, " "),
				Caller:  user,
				NoCache: true,
			}
			if includeAdult != "" {
				value := includeAdult == "true"
				request.IncludeAdult = &value
			}

			out := cmd.OutOrStdout()
			if aggregate {
				response, err := components.Search.Aggregate(cmd.Context(), request)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(out, response)
				}
				writeGroups(out, response)
				return nil
			}

			response, err := components.Search.Search(cmd.Context(), request)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(out, response)
			}
			writeResults(out, response)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&user, "user", "u", "", "Search as this user (their adult filter applies)")
	flags.StringVar(&includeAdult, "include-adult", "", "Override the adult filter: true | false")
	flags.BoolVarP(&aggregate, "aggregate", "a", false, "Group results by title")
	flags.IntVar(&maxPage, "max-page", 0, "Pages per source (default SEARCH_MAX_PAGE)")
	flags.BoolVarP(&asJSON, "json", "j", false, "Print JSON")
	return cmd
}

func writeResults(w io.Writer, response domain.SearchResponse) {
	for _, item := range response.RegularResults {
		fmt.Fprintf(w, "[%s] %s (%s) %d episodes  id=%s\n", item.SourceName, item.Title, item.Year, len(item.Episodes), item.ID)
	}
	fmt.Fprintf(w, "%d results in %dms", len(response.RegularResults), response.SearchTime)
	if response.Degraded {
		fmt.Fprint(w, " (registry unavailable)")
	}
	fmt.Fprintln(w)
}

func writeGroups(w io.Writer, response domain.AggregateResponse) {
	for _, group := range response.Groups {
		fmt.Fprintf(w, "%s (%s) [%s]\n", group.Title, group.Year, group.Type)
		for _, item := range group.Items {
			fmt.Fprintf(w, "    %s  id=%s  %d episodes\n", item.SourceName, item.ID, len(item.Episodes))
		}
	}
	fmt.Fprintf(w, "%d groups in %dms\n", len(response.Groups), response.SearchTime)
}

func (c *cli) probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe URL",
		Short: "Report the quality and load speed of an HLS playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prober := hls.NewProber(nil, c.cfg.UserAgent)
			quality, err := prober.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), quality)
		},
	}
}
