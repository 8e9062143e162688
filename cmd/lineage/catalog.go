package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agenthands/lineage/internal/core/model"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the catalog database and graph indices",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cmd, appOptions(cmd))
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())
		fmt.Printf("Catalog ready at %s\n", a.Config.Catalog.Path)
		return nil
	},
}

var importURLCmd = &cobra.Command{
	Use:   "import-url <url>...",
	Short: "Add obituary URLs to the catalog as pending",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := openCatalog(cmd)
		if err != nil {
			return err
		}
		defer cat.Close()

		var rejected int
		for _, u := range args {
			added, err := cat.Add(cmd.Context(), u)
			switch {
			case err != nil:
				rejected++
				fmt.Fprintf(os.Stderr, "rejected %s: %v\n", u, err)
			case added:
				fmt.Printf("added %s\n", u)
			default:
				fmt.Printf("already known %s\n", u)
			}
		}
		if rejected > 0 {
			return fmt.Errorf("%d url(s) rejected", rejected)
		}
		return nil
	},
}

var importFileCmd = &cobra.Command{
	Use:   "import-file <file.json>",
	Short: "Add every URL listed in a JSON file to the catalog",
	Long: `import-file accepts either a bare JSON array of URLs or an object of the
form {"urls": [{"url": "...", "date_added": "...", "status": "..."}]}.
URLs already in the catalog are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := openCatalog(cmd)
		if err != nil {
			return err
		}
		defer cat.Close()

		n, err := cat.ImportJSON(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d new url(s)\n", n)
		return nil
	},
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [url]...",
	Short: "Reset documents to pending so the next run processes them again",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) > 0) {
			return fmt.Errorf("give either urls or --all")
		}

		cat, err := openCatalog(cmd)
		if err != nil {
			return err
		}
		defer cat.Close()

		if all {
			n, err := cat.ResetAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Reset %d document(s)\n", n)
			return nil
		}
		for _, u := range args {
			if err := cat.Reset(cmd.Context(), u); err != nil {
				return fmt.Errorf("reset %s: %w", u, err)
			}
			fmt.Printf("reset %s\n", u)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog counts per status, or the documents in one status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := openCatalog(cmd)
		if err != nil {
			return err
		}
		defer cat.Close()

		filter, _ := cmd.Flags().GetString("status")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if filter != "" {
			st, ok := model.ParseStatus(filter)
			if !ok {
				return fmt.Errorf("unknown status %q", filter)
			}
			docs, err := cat.List(cmd.Context(), st)
			if err != nil {
				return err
			}
			return printDocuments(docs, jsonOutput)
		}

		counts, err := cat.Counts(cmd.Context())
		if err != nil {
			return err
		}
		return printCounts(counts, jsonOutput)
	},
}

func printDocuments(docs []model.SourceDocument, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	if len(docs) == 0 {
		fmt.Println("No documents.")
		return nil
	}
	for _, d := range docs {
		line := fmt.Sprintf("%-18s  %s", d.Status, d.URL)
		if d.LastError != "" {
			line += "  (" + d.LastError + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func printCounts(counts map[model.Status]int, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}
	keys := make([]string, 0, len(counts))
	var total int
	for st, n := range counts {
		keys = append(keys, string(st))
		total += n
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-18s  %d\n", k, counts[model.Status(k)])
	}
	fmt.Printf("%-18s  %d\n", "total", total)
	return nil
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the catalog as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := openCatalog(cmd)
		if err != nil {
			return err
		}
		defer cat.Close()

		out, _ := cmd.Flags().GetString("output")
		if out == "" || out == "-" {
			return cat.ExportYAML(cmd.Context(), os.Stdout)
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := cat.ExportYAML(cmd.Context(), f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

func init() {
	reprocessCmd.Flags().Bool("all", false, "reset every document")
	statusCmd.Flags().String("status", "", "list documents in this status")
	statusCmd.Flags().Bool("json", false, "output as JSON")
	exportCmd.Flags().StringP("output", "o", "-", "output file")

	rootCmd.AddCommand(initDBCmd, importURLCmd, importFileCmd, reprocessCmd, statusCmd, exportCmd)
}
