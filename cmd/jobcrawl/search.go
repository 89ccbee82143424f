package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/edukz/vagas-scrapy/internal/cacheindex"
)

func newSearchCmd() *cobra.Command {
	var companies, technologies, locations, levels []string
	var minJobs int

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the cache index by facet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadContext()
			if err != nil {
				return err
			}
			defer cc.Close()

			index, err := cacheindex.Open(filepath.Join(cc.Settings.Cache.Dir, "cache_index.json"))
			if err != nil {
				return fmt.Errorf("open cache index: %w", err)
			}

			results := index.Search(cacheindex.Criteria{
				Companies:    companies,
				Technologies: technologies,
				Locations:    locations,
				Levels:       levels,
				MinJobs:      minJobs,
			})

			data, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal search results: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&companies, "company", nil, "filter by company (OR within facet)")
	cmd.Flags().StringSliceVar(&technologies, "tech", nil, "filter by technology")
	cmd.Flags().StringSliceVar(&locations, "location", nil, "filter by location")
	cmd.Flags().StringSliceVar(&levels, "level", nil, "filter by seniority level")
	cmd.Flags().IntVar(&minJobs, "min-jobs", 0, "minimum job_count per entry")
	return cmd
}

func newTopCmd() *cobra.Command {
	var facet string
	var k int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the top companies or technologies by job count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadContext()
			if err != nil {
				return err
			}
			defer cc.Close()

			index, err := cacheindex.Open(filepath.Join(cc.Settings.Cache.Dir, "cache_index.json"))
			if err != nil {
				return fmt.Errorf("open cache index: %w", err)
			}

			var aggregates []cacheindex.Aggregate
			switch facet {
			case "technologies":
				aggregates = index.TopTechnologies(k)
			default:
				aggregates = index.TopCompanies(k)
			}

			for _, a := range aggregates {
				fmt.Printf("%-30s %d\n", a.Value, a.Count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&facet, "facet", "companies", "companies or technologies")
	cmd.Flags().IntVar(&k, "k", 10, "number of results")
	return cmd
}
