package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
			// The server answers a registration with 303 to the dashboard.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return fmt.Errorf("%s: %s", resp.Status, e.Message)
	}
	return fmt.Errorf("API returned status: %s", resp.Status)
}

func (c *client) add(rawURL, alias string) error {
	resp, err := c.http.PostForm(c.base+"/websites", url.Values{"url": {rawURL}, "alias": {alias}})
	if err != nil {
		return fmt.Errorf("error contacting API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther && resp.StatusCode/100 != 2 {
		return readError(resp)
	}
	return nil
}

func (c *client) remove(alias string) error {
	req, err := http.NewRequest(http.MethodDelete, c.base+"/websites/"+url.PathEscape(alias), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error contacting API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return nil
}

type overview struct {
	Sites []struct {
		Site struct {
			Alias string `json:"alias"`
			URL   string `json:"url"`
		} `json:"site"`
		Buckets []struct {
			UptimePct *int `json:"uptime_pct"`
		} `json:"buckets"`
	} `json:"sites"`
}

func (c *client) list(w io.Writer) error {
	resp, err := c.http.Get(c.base + "/api/websites")
	if err != nil {
		return fmt.Errorf("error contacting API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	var ov overview
	if err := json.NewDecoder(resp.Body).Decode(&ov); err != nil {
		return fmt.Errorf("decode overview: %w", err)
	}
	if len(ov.Sites) == 0 {
		fmt.Fprintln(w, "No websites registered.")
		return nil
	}
	for _, s := range ov.Sites {
		current := "no data"
		if len(s.Buckets) > 0 && s.Buckets[0].UptimePct != nil {
			current = fmt.Sprintf("%d%%", *s.Buckets[0].UptimePct)
		}
		fmt.Fprintf(w, "%-20s %-8s %s\n", s.Site.Alias, current, s.Site.URL)
	}
	return nil
}

func prompt(r *bufio.Reader, w io.Writer, label string) string {
	fmt.Fprint(w, label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func newRootCmd() *cobra.Command {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}

	root := &cobra.Command{
		Use:           "uptimeboard-cli",
		Short:         "Manage the websites an uptimeboard server monitors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&api, "api", api, "server base URL (API_BASE)")

	root.AddCommand(&cobra.Command{
		Use:   "add [url] [alias]",
		Short: "Register a website; prompts for missing values",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			var raw, alias string
			if len(args) > 0 {
				raw = args[0]
			} else {
				raw = prompt(in, out, "Enter a site URL to monitor (e.g., https://example.com): ")
			}
			if !strings.Contains(raw, "://") {
				raw = "https://" + raw
			}
			if len(args) > 1 {
				alias = args[1]
			} else {
				alias = prompt(in, out, "Alias: ")
			}
			if err := newClient(api).add(raw, alias); err != nil {
				return err
			}
			fmt.Fprintf(out, "Added %s. It will be probed on the next tick.\n", alias)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "delete <alias>",
		Short: "Stop monitoring a website and drop its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(api).remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show every website with its current-hour uptime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(api).list(cmd.OutOrStdout())
		},
	})
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
