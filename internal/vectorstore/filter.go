package vectorstore

// filterClauses translates a Filters map into Elasticsearch `filter` bool
// clauses (§4.9.3): exact-match term queries for scalar fields, terms
// queries for slice values, range queries for the two recognized range
// keys. Unknown keys are passed through as term queries on the assumption
// they name a mapped keyword/boolean/integer field.
func filterClauses(f Filters) []map[string]interface{} {
	if len(f) == 0 {
		return nil
	}

	clauses := make([]map[string]interface{}, 0, len(f))
	for key, value := range f {
		switch key {
		case "start_timestamp_gte":
			clauses = append(clauses, rangeClause("start_timestamp", "gte", value))
		case "start_timestamp_lte":
			clauses = append(clauses, rangeClause("start_timestamp", "lte", value))
		case "end_timestamp_gte":
			clauses = append(clauses, rangeClause("end_timestamp", "gte", value))
		case "end_timestamp_lte":
			clauses = append(clauses, rangeClause("end_timestamp", "lte", value))
		default:
			clauses = append(clauses, termOrTerms(key, value))
		}
	}
	return clauses
}

func rangeClause(field, op string, value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"range": map[string]interface{}{
			field: map[string]interface{}{op: value},
		},
	}
}

func termOrTerms(field string, value interface{}) map[string]interface{} {
	if values, ok := value.([]string); ok {
		terms := make([]interface{}, len(values))
		for i, v := range values {
			terms[i] = v
		}
		return map[string]interface{}{"terms": map[string]interface{}{field: terms}}
	}
	if values, ok := value.([]interface{}); ok {
		return map[string]interface{}{"terms": map[string]interface{}{field: values}}
	}
	return map[string]interface{}{"term": map[string]interface{}{field: value}}
}

// exclusionClauses translates Exclusions into `must_not` bool clauses
// (§4.9.4). IsDMWith excludes any 1:1 conversation whose sole other
// participant matches, i.e. is_dm=true AND participants contains the name.
func exclusionClauses(ex Exclusions) []map[string]interface{} {
	var clauses []map[string]interface{}

	if ex.SenderNot != "" {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"sender": ex.SenderNot},
		})
	}
	if ex.ChatIDNot != "" {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"chat_id": ex.ChatIDNot},
		})
	}
	if ex.IsDMWith != "" {
		clauses = append(clauses, map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{"term": map[string]interface{}{"is_dm": true}},
					{"term": map[string]interface{}{"participants": ex.IsDMWith}},
				},
			},
		})
	}
	return clauses
}

// boostClauses translates Boosts into scored `should` clauses (§4.9.5):
// each boost adds Score to the overall relevance when Field equals Value,
// without being required for a match.
func boostClauses(boosts []Boost) []map[string]interface{} {
	if len(boosts) == 0 {
		return nil
	}
	clauses := make([]map[string]interface{}, 0, len(boosts))
	for _, b := range boosts {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{
				b.Field: map[string]interface{}{
					"value": b.Value,
					"boost": b.Score,
				},
			},
		})
	}
	return clauses
}
