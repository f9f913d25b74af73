package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/demo"
)

func main() {
	path := flag.String("path", "sqlagent-demo.duckdb", "destination DuckDB file")
	customers := flag.Int("customers", 200, "number of customers to generate")
	orders := flag.Int("orders", 1000, "number of orders to generate")
	seed := flag.Int64("seed", 1, "random seed; the same seed produces the same database")
	flag.Parse()

	if _, err := os.Stat(*path); err == nil {
		fmt.Fprintf(os.Stderr, "refusing to overwrite existing file %s\n", *path)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary, err := demo.Seed(ctx, demo.Options{
		Path:      *path,
		Customers: *customers,
		Orders:    *orders,
		Seed:      *seed,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s: %d customers, %d products, %d orders, %d order items\n",
		*path, summary.Customers, summary.Products, summary.Orders, summary.OrderItems)
}
