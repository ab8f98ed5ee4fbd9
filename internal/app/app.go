package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "migrate":
		return runMigrate(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "enrich":
		return runEnrich(args[1:])
	case "summarize-articles":
		return runSummarizeArticles(args[1:])
	case "embed":
		return runEmbed(args[1:])
	case "cluster":
		return runCluster(args[1:])
	case "bonus":
		return runBonus(args[1:])
	case "summarize":
		return runSummarize(args[1:])
	case "process":
		return runProcess(args[1:])
	case "run":
		return runExplicit(args[1:])
	case "run-category":
		return runCategory(args[1:])
	case "cluster-keywords":
		return runClusterKeywords(args[1:])
	case "score-batch":
		return runScoreBatch(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "trustwire CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  trustwire <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health            Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  migrate           Create or update the database schema")
	fmt.Fprintln(os.Stderr, "  ingest            Insert article items from a JSON file")
	fmt.Fprintln(os.Stderr, "  validate          Validate article item JSON files")
	fmt.Fprintln(os.Stderr, "  enrich            Fetch missing article bodies")
	fmt.Fprintln(os.Stderr, "  summarize-articles  Generate missing per-article AI summaries")
	fmt.Fprintln(os.Stderr, "  embed             Generate embeddings for articles")
	fmt.Fprintln(os.Stderr, "  cluster           Assign clusters and score articles")
	fmt.Fprintln(os.Stderr, "  bonus             Apply the cross-source corroboration bonus")
	fmt.Fprintln(os.Stderr, "  summarize         Generate cluster titles and summaries")
	fmt.Fprintln(os.Stderr, "  process           Run the full pipeline over pending articles")
	fmt.Fprintln(os.Stderr, "  run               Run the full pipeline over explicit article ids")
	fmt.Fprintln(os.Stderr, "  run-category      Run the full pipeline over recent articles of a category")
	fmt.Fprintln(os.Stderr, "  cluster-keywords  Group unclustered articles by title keywords")
	fmt.Fprintln(os.Stderr, "  score-batch       Score a JSON batch from stdin and write results to stdout")
	fmt.Fprintln(os.Stderr, "  serve             Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"trustwire <command> -h\" for command-specific flags.")
}
