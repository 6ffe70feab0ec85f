package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"listing-scraper/scraper"
	"listing-scraper/scraper/accountsplace"
	"listing-scraper/scraper/jiji"
)

func init() {
	rootCmd.AddCommand(sitesCmd)
}

// siteRegistry holds every site this binary can crawl.
func siteRegistry() (*scraper.Registry, error) {
	return scraper.NewRegistry(append(accountsplace.Sites(), jiji.Sites()...)...)
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Lists the sites that can be crawled.",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := siteRegistry()
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Site", "List", "Details", "Start URL", "Description"})
		for _, s := range reg.All() {
			details := "-"
			if s.Detail != nil {
				details = s.DetailMode.String()
			}
			t.AppendRow(table.Row{s.Name, s.ListMode.String(), details, s.StartURL, s.Description})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
