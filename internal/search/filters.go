package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/sha1n/relic-search/internal/domain"
)

// Full-text field boosts.
const (
	symbolsBoost  = 5.0
	fileNameBoost = 2.0
)

// textQuery matches text against content, symbols and file name. Blank text
// matches every document.
func textQuery(text string) query.Query {
	if strings.TrimSpace(text) == "" {
		return bleve.NewMatchAllQuery()
	}

	content := bleve.NewMatchQuery(text)
	content.SetField(domain.FieldContent)

	symbols := bleve.NewMatchQuery(text)
	symbols.SetField(fieldCodeSymbolsText)
	symbols.SetBoost(symbolsBoost)

	fileName := bleve.NewMatchQuery(text)
	fileName.SetField(fieldFileNameText)
	fileName.SetBoost(fileNameBoost)

	return bleve.NewDisjunctionQuery(content, symbols, fileName)
}

func repositoryQuery(repositoryID string) query.Query {
	if repositoryID == "" {
		return bleve.NewMatchAllQuery()
	}
	return termQuery(domain.FieldRepositoryID, repositoryID)
}

// buildQuery ANDs the base query with the repository scope and filters.
func buildQuery(base query.Query, repositoryID string, filters []domain.SearchFilter) (query.Query, error) {
	if repositoryID == "" && len(filters) == 0 {
		return base, nil
	}

	conjuncts := []query.Query{base}
	if repositoryID != "" {
		conjuncts = append(conjuncts, termQuery(domain.FieldRepositoryID, repositoryID))
	}
	for _, f := range filters {
		q, err := filterQuery(f)
		if err != nil {
			return nil, err
		}
		conjuncts = append(conjuncts, q)
	}
	return bleve.NewConjunctionQuery(conjuncts...), nil
}

// filterQuery translates a filter into a bleve query. Keyword fields compare
// exactly and lexicographically, numbers and dates numerically.
func filterQuery(f domain.SearchFilter) (query.Query, error) {
	if err := domain.ValidateFilter(f); err != nil {
		return nil, err
	}
	kind, _ := domain.LookupField(f.Field)

	switch kind {
	case domain.KindText:
		mq := bleve.NewMatchQuery(f.Value)
		mq.SetField(f.Field)
		mq.SetOperator(query.MatchQueryOperatorAnd)
		return mq, nil

	case domain.KindNumber:
		v, _ := strconv.ParseFloat(f.Value, 64)
		switch f.Operator {
		case domain.OpEq:
			return numericEq(f.Field, v), nil
		case domain.OpNe:
			return not(numericEq(f.Field, v)), nil
		case domain.OpGt:
			return numericRange(f.Field, &v, nil, false), nil
		case domain.OpLt:
			return numericRange(f.Field, nil, &v, false), nil
		}

	case domain.KindDate:
		v, _ := time.Parse(time.RFC3339, f.Value)
		switch f.Operator {
		case domain.OpEq:
			return dateRange(f.Field, v, v, true), nil
		case domain.OpNe:
			return not(dateRange(f.Field, v, v, true)), nil
		case domain.OpGt:
			return dateRange(f.Field, v, time.Time{}, false), nil
		case domain.OpLt:
			return dateRange(f.Field, time.Time{}, v, false), nil
		}

	case domain.KindKeyword:
		switch f.Operator {
		case domain.OpEq:
			return termQuery(f.Field, f.Value), nil
		case domain.OpNe:
			return not(termQuery(f.Field, f.Value)), nil
		case domain.OpGt:
			exclusive := false
			q := bleve.NewTermRangeInclusiveQuery(f.Value, "", &exclusive, nil)
			q.SetField(f.Field)
			return q, nil
		case domain.OpLt:
			exclusive := false
			q := bleve.NewTermRangeInclusiveQuery("", f.Value, nil, &exclusive)
			q.SetField(f.Field)
			return q, nil
		case domain.OpContains:
			q := bleve.NewRegexpQuery(".*" + regexp.QuoteMeta(f.Value) + ".*")
			q.SetField(f.Field)
			return q, nil
		}
	}

	return nil, domain.NewInvalidQueryError("operator %q is not supported on field %q", f.Operator, f.Field)
}

func termQuery(field, value string) query.Query {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

func not(q query.Query) query.Query {
	bq := bleve.NewBooleanQuery()
	bq.AddMust(bleve.NewMatchAllQuery())
	bq.AddMustNot(q)
	return bq
}

func numericEq(field string, v float64) query.Query {
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(&v, &v, &inclusive, &inclusive)
	q.SetField(field)
	return q
}

func numericRange(field string, lo, hi *float64, inclusive bool) query.Query {
	q := bleve.NewNumericRangeInclusiveQuery(lo, hi, &inclusive, &inclusive)
	q.SetField(field)
	return q
}

func dateRange(field string, start, end time.Time, inclusive bool) query.Query {
	q := bleve.NewDateRangeInclusiveQuery(start, end, &inclusive, &inclusive)
	q.SetField(field)
	return q
}
