package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sha1n/relic-search/internal/config"
	"github.com/sha1n/relic-search/internal/domain"
)

// QueryOptions are the search command inputs.
type QueryOptions struct {
	Text       string
	Type       string
	Repository string
	Filters    []string
	Top        int
	Skip       int
	JSON       bool
}

// RunIndex indexes each directory and prints a summary line per run. It
// fails if any run failed.
func RunIndex(ctx context.Context, settings *config.Settings, dirs []string, out io.Writer) error {
	c, err := NewComponents(settings, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	var errs []error
	for _, dir := range dirs {
		result, err := c.Pipeline.IndexDirectory(ctx, dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dir, err))
			if result == nil {
				continue
			}
		}

		skipped := 0
		for outcome, n := range result.Outcomes {
			if outcome.IsSkip() {
				skipped += n
			}
		}
		_, _ = fmt.Fprintf(out, "%s: %s, %d files, %d indexed, %d skipped, %d failed, %d removed (%s)\n",
			domain.RepositoryIDToDisplay(result.Repository.ID), result.Status.Status, result.Files,
			result.Indexed, skipped, len(result.Failed), result.Deleted, result.Duration.Round(time.Millisecond))
	}
	return errors.Join(errs...)
}

// RunSearch executes a query and prints the results.
func RunSearch(ctx context.Context, settings *config.Settings, opts QueryOptions, out io.Writer) error {
	searchType, err := domain.ParseSearchType(opts.Type)
	if err != nil {
		return err
	}

	top := opts.Top
	if top <= 0 {
		top = settings.Search.DefaultTop
	}
	q := domain.NewSearchQuery(opts.Text, searchType).WithPaging(top, opts.Skip)
	for _, raw := range opts.Filters {
		f, err := ParseFilter(raw)
		if err != nil {
			return err
		}
		q = q.WithFilters(f)
	}

	c, err := NewComponents(settings, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	var results *domain.SearchResults
	if opts.Repository != "" {
		results, err = c.Engine.SearchRepository(ctx, domain.SanitizeRepositoryID(opts.Repository), q)
	} else {
		results, err = c.Engine.Search(ctx, q)
	}
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printResults(out, results, q.Skip)
	return nil
}

// ParseFilter parses field=value, field!=value, field>value, field<value
// and field~value (contains).
func ParseFilter(s string) (domain.SearchFilter, error) {
	// Two character operators first so "!=" is not read as "="
	ops := []struct {
		token string
		op    domain.FilterOperator
	}{
		{"!=", domain.OpNe},
		{"=", domain.OpEq},
		{">", domain.OpGt},
		{"<", domain.OpLt},
		{"~", domain.OpContains},
	}

	best, bestAt := -1, len(s)
	for i, o := range ops {
		if at := strings.Index(s, o.token); at > 0 && at < bestAt {
			best, bestAt = i, at
		}
	}
	if best < 0 {
		return domain.SearchFilter{}, fmt.Errorf("invalid filter %q: expected field<op>value", s)
	}

	o := ops[best]
	return domain.SearchFilter{
		Field:    strings.TrimSpace(s[:bestAt]),
		Operator: o.op,
		Value:    strings.TrimSpace(s[bestAt+len(o.token):]),
	}, nil
}

func printResults(out io.Writer, results *domain.SearchResults, skip int) {
	if !results.Ready {
		_, _ = fmt.Fprintln(out, "The index has not been created yet. Run the index command first.")
		return
	}
	if results.TotalCount == 0 {
		_, _ = fmt.Fprintln(out, "No results.")
		return
	}

	for i, r := range results.Results {
		doc := r.Document
		_, _ = fmt.Fprintf(out, "%d. %s:%s (score %.4f, %s)\n", skip+i+1,
			domain.RepositoryIDToDisplay(doc.RepositoryID), doc.FilePath, r.Score, doc.Language)
		for _, h := range r.Highlights {
			_, _ = fmt.Fprintf(out, "   %s\n", strings.TrimSpace(h))
		}
	}

	_, _ = fmt.Fprintf(out, "\nShowing %d-%d of %d results (%s, %s)\n", skip+1, skip+len(results.Results),
		results.TotalCount, results.SearchType, results.Duration.Round(time.Millisecond))

	fields := make([]string, 0, len(results.Facets))
	for field := range results.Facets {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		values := results.Facets[field]
		if len(values) == 0 {
			continue
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, fmt.Sprintf("%s=%d", v.Value, v.Count))
		}
		_, _ = fmt.Fprintf(out, "%s: %s\n", field, strings.Join(parts, " "))
	}
}

// RunStatus prints the status of the given repositories, or of every
// tracked repository when none are given.
func RunStatus(ctx context.Context, settings *config.Settings, repos []string, out io.Writer) error {
	c, err := NewComponents(settings, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ids := make([]string, 0, len(repos))
	for _, r := range repos {
		ids = append(ids, domain.SanitizeRepositoryID(r))
	}
	if len(ids) == 0 {
		ids = c.Engine.Repositories()
	}
	if len(ids) == 0 {
		_, _ = fmt.Fprintln(out, "No repositories have been indexed.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REPOSITORY\tSTATUS\tDOCUMENTS\tPROGRESS\tLAST INDEXED\tERROR")
	for _, id := range ids {
		s := c.Engine.GetIndexStatus(ctx, id)
		last := "-"
		if s.LastIndexed != nil {
			last = s.LastIndexed.Local().Format(time.DateTime)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%.0f%%\t%s\t%s\n", domain.RepositoryIDToDisplay(id), s.Status,
			s.DocumentsIndexed, s.ProgressPercentage(), last, s.ErrorMessage)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(repos) == 0 {
		if failed := c.Engine.Tracker().Failed(); len(failed) > 0 {
			_, _ = fmt.Fprintf(out, "\n%d of %d repositories failed to index. Run index again to retry.\n", len(failed), len(ids))
		}
	}
	return nil
}

// RunDelete removes a repository's documents and status.
func RunDelete(ctx context.Context, settings *config.Settings, repo string, out io.Writer) error {
	c, err := NewComponents(settings, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	id := domain.SanitizeRepositoryID(repo)
	deleted, err := c.Engine.RemoveRepository(ctx, id)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Removed %d documents of %s\n", deleted, domain.RepositoryIDToDisplay(id))
	return nil
}

// RunRecreate drops the index and creates an empty one sized for the
// configured embedder.
func RunRecreate(ctx context.Context, settings *config.Settings, out io.Writer) error {
	c, err := NewComponents(settings, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	dims := c.Embedder.Dimensions()
	if err := c.Engine.RecreateIndex(ctx, dims); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Recreated index %q with %d dimensions\n", settings.IndexName, dims)
	return nil
}
