package graphdb

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// cleanRecord нормализует запись результата Cypher-запроса:
// узлы и связи сворачиваются в их свойства, метки добавляются
// отдельным полем labels. Списки обрабатываются поэлементно.
func cleanRecord(record map[string]any) map[string]any {
	cleaned := make(map[string]any, len(record))
	for key, value := range record {
		cleaned[key] = cleanValue(value)
	}
	return cleaned
}

func cleanValue(value any) any {
	switch v := value.(type) {
	case dbtype.Node:
		return nodeProps(v)
	case dbtype.Relationship:
		props := copyProps(v.Props)
		props["type"] = v.Type
		return props
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			// Пустые элементы OPTIONAL MATCH отбрасываются.
			if item == nil {
				continue
			}
			out = append(out, cleanValue(item))
		}
		return out
	default:
		return v
	}
}

// nodeProps возвращает свойства узла с добавленными метками.
func nodeProps(n dbtype.Node) map[string]any {
	props := copyProps(n.Props)
	props["labels"] = n.Labels
	return props
}

func copyProps(src map[string]any) map[string]any {
	props := make(map[string]any, len(src)+1)
	for k, v := range src {
		props[k] = v
	}
	return props
}

// asProps приводит нормализованное значение к свойствам узла.
func asProps(value any) map[string]any {
	props, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return props
}

// asPropsList приводит нормализованный список к списку свойств узлов.
func asPropsList(value any) []map[string]any {
	items, ok := value.([]any)
	if !ok {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if props, ok := item.(map[string]any); ok {
			out = append(out, props)
		}
	}
	return out
}

// addNode добавляет узел в дамп, если он ещё не встречался.
// Идентичность узла — его ElementId.
func addNode(dump *GraphDump, seen map[string]bool, value any) {
	node, ok := value.(dbtype.Node)
	if !ok {
		return
	}
	if seen[node.ElementId] {
		return
	}
	seen[node.ElementId] = true
	dump.Nodes = append(dump.Nodes, nodeProps(node))
}

// addRelationship добавляет связь в дамп в виде {from, type, to},
// где from/to — имена узлов (свойство name).
func addRelationship(dump *GraphDump, relValue, fromValue, toValue any) {
	rel, ok := relValue.(dbtype.Relationship)
	if !ok {
		return
	}
	from, okFrom := fromValue.(dbtype.Node)
	to, okTo := toValue.(dbtype.Node)
	if !okFrom || !okTo {
		return
	}
	dump.Relationships = append(dump.Relationships, map[string]any{
		"from": from.Props["name"],
		"type": rel.Type,
		"to":   to.Props["name"],
	})
}
