// Package demo builds a deterministic sample retail database in a DuckDB
// file so the agent can be tried without connecting to production data.
// The same seed always produces the same database.
package demo

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
)

type Options struct {
	Path      string
	Customers int
	Orders    int
	Seed      int64
}

type Summary struct {
	Customers  int
	Products   int
	Orders     int
	OrderItems int
}

func (o *Options) ensureDefaults() {
	if o.Customers <= 0 {
		o.Customers = 200
	}
	if o.Orders <= 0 {
		o.Orders = 1000
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
}

// baseTime anchors all generated timestamps so the data does not drift with
// the wall clock.
var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type product struct {
	Name     string
	Category string
	Price    float64
}

var productCatalog = []product{
	{"Espresso Machine", "kitchen", 249.00},
	{"French Press", "kitchen", 34.50},
	{"Chef Knife", "kitchen", 89.99},
	{"Cast Iron Skillet", "kitchen", 42.00},
	{"Standing Desk", "office", 399.00},
	{"Ergonomic Chair", "office", 289.00},
	{"Monitor Arm", "office", 74.95},
	{"Mechanical Keyboard", "office", 129.00},
	{"Desk Lamp", "office", 45.50},
	{"Trail Backpack", "outdoor", 119.00},
	{"Sleeping Bag", "outdoor", 95.00},
	{"Camping Stove", "outdoor", 64.25},
	{"Water Bottle", "outdoor", 18.99},
	{"Running Shoes", "sports", 139.00},
	{"Yoga Mat", "sports", 29.95},
	{"Dumbbell Set", "sports", 159.00},
	{"Wireless Earbuds", "electronics", 179.00},
	{"Bluetooth Speaker", "electronics", 89.00},
	{"E-Reader", "electronics", 149.99},
	{"Phone Stand", "electronics", 14.50},
}

var (
	firstNames = []string{"Ada", "Bruno", "Carla", "Derek", "Elena", "Felix", "Greta", "Hugo", "Ines", "Jonas", "Katja", "Liam", "Mara", "Nils", "Olga", "Pavel", "Questa", "Rosa", "Sven", "Tilda"}
	lastNames  = []string{"Abel", "Berg", "Curtis", "Dawson", "Eckert", "Fischer", "Grant", "Huber", "Ivanov", "Jensen", "Keller", "Lund", "Meyer", "Novak", "Olsen", "Petrov", "Quinn", "Reyes", "Schmidt", "Tanaka"}
	countries  = []string{"US", "DE", "GB", "IN", "JP", "BR"}
	statuses   = []string{"pending", "paid", "shipped", "delivered", "cancelled"}
)

const schemaDDL = `
CREATE TABLE customers (
	id BIGINT PRIMARY KEY,
	name VARCHAR NOT NULL,
	email VARCHAR NOT NULL,
	country VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE products (
	id BIGINT PRIMARY KEY,
	name VARCHAR NOT NULL,
	category VARCHAR NOT NULL,
	price DOUBLE NOT NULL
);
CREATE TABLE orders (
	id BIGINT PRIMARY KEY,
	customer_id BIGINT NOT NULL,
	status VARCHAR NOT NULL,
	ordered_at TIMESTAMP NOT NULL,
	total DOUBLE NOT NULL
);
CREATE TABLE order_items (
	order_id BIGINT NOT NULL,
	product_id BIGINT NOT NULL,
	quantity INTEGER NOT NULL,
	unit_price DOUBLE NOT NULL,
	PRIMARY KEY (order_id, product_id)
);`

// Seed creates the sample database at opts.Path. The target must not
// already contain the sample tables.
func Seed(ctx context.Context, opts Options) (Summary, error) {
	opts.ensureDefaults()
	if strings.TrimSpace(opts.Path) == "" {
		return Summary{}, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("duckdb", opts.Path)
	if err != nil {
		return Summary{}, fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return Summary{}, fmt.Errorf("create schema: %w", err)
	}

	gen := newGenerator(opts.Seed)
	if err := insertData(ctx, db, gen, opts); err != nil {
		return Summary{}, err
	}

	return Summary{
		Customers:  opts.Customers,
		Products:   len(productCatalog),
		Orders:     opts.Orders,
		OrderItems: gen.itemCount,
	}, nil
}

type generator struct {
	rnd       *rand.Rand
	itemCount int
}

func newGenerator(seed int64) *generator {
	return &generator{rnd: rand.New(rand.NewSource(seed))}
}

type orderItem struct {
	ProductID int64
	Quantity  int
	UnitPrice float64
}

func (g *generator) customerName() string {
	return pickOne(g.rnd, firstNames) + " " + pickOne(g.rnd, lastNames)
}

func (g *generator) customerEmail(name string, id int64) string {
	local := strings.ToLower(strings.ReplaceAll(name, " ", "."))
	return fmt.Sprintf("%s.%d@example.com", local, id)
}

func (g *generator) customerCreatedAt() time.Time {
	// customers sign up during the year before orders begin
	offset := time.Duration(g.rnd.Int63n(int64(365 * 24 * time.Hour)))
	return baseTime.Add(-offset).Truncate(time.Second)
}

func (g *generator) orderedAt() time.Time {
	offset := time.Duration(g.rnd.Int63n(int64(365 * 24 * time.Hour)))
	return baseTime.Add(offset).Truncate(time.Second)
}

func (g *generator) orderStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 10:
		return "pending"
	case p < 35:
		return "paid"
	case p < 60:
		return "shipped"
	case p < 93:
		return "delivered"
	default:
		return "cancelled"
	}
}

// orderItems picks one to four distinct products for an order.
func (g *generator) orderItems() []orderItem {
	count := 1 + g.rnd.Intn(4)
	chosen := make(map[int]bool, count)
	items := make([]orderItem, 0, count)
	for len(items) < count {
		idx := g.rnd.Intn(len(productCatalog))
		if chosen[idx] {
			continue
		}
		chosen[idx] = true
		items = append(items, orderItem{
			ProductID: int64(idx + 1),
			Quantity:  1 + g.rnd.Intn(5),
			UnitPrice: productCatalog[idx].Price,
		})
	}
	g.itemCount += len(items)
	return items
}

func insertData(ctx context.Context, db *sql.DB, gen *generator, opts Options) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for idx, p := range productCatalog {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, name, category, price) VALUES (?, ?, ?, ?)`,
			int64(idx+1), p.Name, p.Category, p.Price,
		); err != nil {
			return fmt.Errorf("insert product %q: %w", p.Name, err)
		}
	}

	for id := int64(1); id <= int64(opts.Customers); id++ {
		name := gen.customerName()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO customers (id, name, email, country, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, name, gen.customerEmail(name, id), pickOne(gen.rnd, countries), gen.customerCreatedAt(),
		); err != nil {
			return fmt.Errorf("insert customer %d: %w", id, err)
		}
	}

	for id := int64(1); id <= int64(opts.Orders); id++ {
		customerID := gen.rnd.Int63n(int64(opts.Customers)) + 1
		orderedAt := gen.orderedAt()
		items := gen.orderItems()

		total := 0.0
		for _, item := range items {
			total += float64(item.Quantity) * item.UnitPrice
		}
		total = round2(total)

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, customer_id, status, ordered_at, total) VALUES (?, ?, ?, ?, ?)`,
			id, customerID, gen.orderStatus(), orderedAt, total,
		); err != nil {
			return fmt.Errorf("insert order %d: %w", id, err)
		}
		for _, item := range items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)`,
				id, item.ProductID, item.Quantity, item.UnitPrice,
			); err != nil {
				return fmt.Errorf("insert order item %d/%d: %w", id, item.ProductID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}
	return nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
