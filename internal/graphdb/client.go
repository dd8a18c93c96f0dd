// Пакет graphdb — клиент графа знаний в Neo4j.
// Граф наполняется анализатором кодовой базы; модуль читает его:
// окрестность класса (наследование, методы, атрибуты) и дамп графа.
package graphdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config — конфигурация подключения к Neo4j.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// Client — клиент графа знаний.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewClient создаёт клиент и проверяет соединение.
// Закрытие — обязанность вызывающего (Close).
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("создание драйвера Neo4j: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("проверка соединения с Neo4j: %w", err)
	}
	return &Client{
		driver:   driver,
		database: cfg.Database,
		logger:   logger.With(slog.String("component", "graphdb")),
	}, nil
}

// Close закрывает соединение с Neo4j.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// CheckReady проверяет доступность Neo4j. Используется в readiness probe.
func (c *Client) CheckReady(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// classNeighborhoodQuery — окрестность класса одним обходом:
// наследование по ярусам (родители, дети, внуки, все потомки, сиблинги),
// методы каждого яруса, атрибуты и переопределения. OPTIONAL MATCH
// гарантирует, что отсутствие связи даёт пустую коллекцию, а не ошибку.
const classNeighborhoodQuery = `
MATCH (c:Class {name: $nodeName})
OPTIONAL MATCH (c)-[:INHERITS_FROM]->(parent:Class)
OPTIONAL MATCH (parent)-[:HAS_METHOD]->(parent_method:Method)
OPTIONAL MATCH (c)<-[:INHERITS_FROM*1..]-(descendant:Class)
OPTIONAL MATCH (c)<-[:INHERITS_FROM]-(child:Class)
OPTIONAL MATCH (child)<-[:INHERITS_FROM]-(grandchild:Class)
OPTIONAL MATCH (descendant)-[:HAS_METHOD]->(descendant_method:Method)
OPTIONAL MATCH (child)-[:HAS_METHOD]->(child_method:Method)
OPTIONAL MATCH (grandchild)-[:HAS_METHOD]->(grandchild_method:Method)
OPTIONAL MATCH (c)-[:INHERITS_FROM]->(parent)<-[:INHERITS_FROM]-(sibling:Class)
OPTIONAL MATCH (sibling)-[:HAS_METHOD]->(sibling_method:Method)
OPTIONAL MATCH (c)-[:HAS_METHOD]->(method:Method)
OPTIONAL MATCH (c)-[:HAS_ATTRIBUTE]->(attr:ClassAttribute)
OPTIONAL MATCH (c)-[:OVERRIDES]->(overridden_method:Method)
RETURN
    c as targetClass,
    collect(DISTINCT parent) as parents,
    collect(DISTINCT child) as children,
    collect(DISTINCT grandchild) as grandchildren,
    collect(DISTINCT descendant) as descendants,
    collect(DISTINCT sibling) as siblings,
    collect(DISTINCT method) as methods,
    collect(DISTINCT parent_method) as parentMethods,
    collect(DISTINCT child_method) as childMethods,
    collect(DISTINCT grandchild_method) as grandchildMethods,
    collect(DISTINCT descendant_method) as descendantMethods,
    collect(DISTINCT sibling_method) as siblingMethods,
    collect(DISTINCT attr) as attributes,
    collect(DISTINCT overridden_method) as overriddenMethods`

// Inheritance — классы окрестности, сгруппированные по ярусам наследования.
type Inheritance struct {
	Parents       []map[string]any `json:"parents"`
	Children      []map[string]any `json:"children"`
	Grandchildren []map[string]any `json:"grandchildren"`
	Descendants   []map[string]any `json:"descendants"`
	Siblings      []map[string]any `json:"siblings"`
}

// Methods — методы окрестности, сгруппированные по принадлежности.
type Methods struct {
	Direct     []map[string]any `json:"direct"`
	Parent     []map[string]any `json:"parent"`
	Child      []map[string]any `json:"child"`
	Grandchild []map[string]any `json:"grandchild"`
	Descendant []map[string]any `json:"descendant"`
	Sibling    []map[string]any `json:"sibling"`
	Overridden []map[string]any `json:"overridden"`
}

// ClassNeighborhood — нормализованный результат запроса окрестности.
// Для класса, отсутствующего в графе, TargetClass == nil, а все
// коллекции — пустые массивы.
type ClassNeighborhood struct {
	TargetClass map[string]any   `json:"targetClass"`
	Inheritance Inheritance      `json:"inheritance"`
	Methods     Methods          `json:"methods"`
	Attributes  []map[string]any `json:"attributes"`
}

// EmptyNeighborhood возвращает окрестность несуществующего класса.
func EmptyNeighborhood() *ClassNeighborhood {
	empty := []map[string]any{}
	return &ClassNeighborhood{
		Inheritance: Inheritance{
			Parents:       empty,
			Children:      empty,
			Grandchildren: empty,
			Descendants:   empty,
			Siblings:      empty,
		},
		Methods: Methods{
			Direct:     empty,
			Parent:     empty,
			Child:      empty,
			Grandchild: empty,
			Descendant: empty,
			Sibling:    empty,
			Overridden: empty,
		},
		Attributes: empty,
	}
}

// GetClassRelationships возвращает окрестность класса по имени.
// Отсутствие класса — не ошибка: возвращается пустая окрестность.
func (c *Client) GetClassRelationships(ctx context.Context, nodeName string) (*ClassNeighborhood, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, classNeighborhoodQuery, map[string]any{"nodeName": nodeName})
		if err != nil {
			return nil, err
		}
		// Collect, а не Single: ошибка транспорта должна дойти до
		// вызывающего, пустой результат — это «класс не найден».
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		return cleanRecord(records[0].AsMap()), nil
	})
	if err != nil {
		return nil, fmt.Errorf("запрос окрестности класса %s: %w", nodeName, err)
	}
	if result == nil {
		return EmptyNeighborhood(), nil
	}

	neighborhood := neighborhoodFromCleaned(result.(map[string]any))
	if neighborhood.TargetClass == nil {
		return EmptyNeighborhood(), nil
	}
	return neighborhood, nil
}

// neighborhoodFromCleaned собирает окрестность класса из очищенной
// записи результата Cypher-запроса.
func neighborhoodFromCleaned(cleaned map[string]any) *ClassNeighborhood {
	return &ClassNeighborhood{
		TargetClass: asProps(cleaned["targetClass"]),
		Inheritance: Inheritance{
			Parents:       asPropsList(cleaned["parents"]),
			Children:      asPropsList(cleaned["children"]),
			Grandchildren: asPropsList(cleaned["grandchildren"]),
			Descendants:   asPropsList(cleaned["descendants"]),
			Siblings:      asPropsList(cleaned["siblings"]),
		},
		Methods: Methods{
			Direct:     asPropsList(cleaned["methods"]),
			Parent:     asPropsList(cleaned["parentMethods"]),
			Child:      asPropsList(cleaned["childMethods"]),
			Grandchild: asPropsList(cleaned["grandchildMethods"]),
			Descendant: asPropsList(cleaned["descendantMethods"]),
			Sibling:    asPropsList(cleaned["siblingMethods"]),
			Overridden: asPropsList(cleaned["overriddenMethods"]),
		},
		Attributes: asPropsList(cleaned["attributes"]),
	}
}

// GraphDump — элемент дампа графа: узел и его исходящие связи.
type GraphDump struct {
	// Nodes — узлы графа с метками и свойствами
	Nodes []map[string]any `json:"nodes"`
	// Relationships — связи вида {from, type, to}
	Relationships []map[string]any `json:"relationships"`
}

// dumpQuery — выборка узлов и связей графа с ограничением размера.
const dumpQuery = `
MATCH (n)
OPTIONAL MATCH (n)-[r]->(m)
RETURN n, r, m
LIMIT $limit`

// DumpGraph возвращает срез графа знаний для отладки и визуализации.
func (c *Client) DumpGraph(ctx context.Context, limit int) (*GraphDump, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, dumpQuery, map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}

		dump := &GraphDump{}
		seen := make(map[string]bool)
		for res.Next(ctx) {
			record := res.Record()
			n, _ := record.Get("n")
			m, _ := record.Get("m")
			rel, _ := record.Get("r")
			addNode(dump, seen, n)
			addNode(dump, seen, m)
			addRelationship(dump, rel, n, m)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return dump, nil
	})
	if err != nil {
		return nil, fmt.Errorf("дамп графа: %w", err)
	}
	return result.(*GraphDump), nil
}
