package demo

import "time"

type table struct {
	name    string
	columns []column
	rows    [][]any
	indexes []index
	fks     []fk
}

type column struct {
	name     string
	dataType string
	nullable bool
	primary  bool
	unique   bool
}

type index struct {
	name    string
	columns []string
	unique  bool
	primary bool
}

type fk struct {
	column, refTable, refColumn string
}

var epoch = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

// dataset is the fixed content every demo connection serves.
func dataset() []*table {
	return []*table{
		{
			name: "customers",
			columns: []column{
				{name: "id", dataType: "integer", primary: true},
				{name: "name", dataType: "text"},
				{name: "email", dataType: "text", unique: true},
				{name: "country", dataType: "text", nullable: true},
				{name: "created_at", dataType: "timestamp"},
			},
			rows: [][]any{
				{1, "Ada Lovelace", "ada@example.com", "GB", epoch},
				{2, "Grace Hopper", "grace@example.com", "US", epoch.Add(24 * time.Hour)},
				{3, "Alan Turing", "alan@example.com", "GB", epoch.Add(48 * time.Hour)},
				{4, "Katherine Johnson", "katherine@example.com", "US", epoch.Add(72 * time.Hour)},
				{5, "Edsger Dijkstra", "edsger@example.com", nil, epoch.Add(96 * time.Hour)},
			},
			indexes: []index{
				{name: "customers_pkey", columns: []string{"id"}, unique: true, primary: true},
				{name: "customers_email_key", columns: []string{"email"}, unique: true},
			},
		},
		{
			name: "products",
			columns: []column{
				{name: "id", dataType: "integer", primary: true},
				{name: "name", dataType: "text"},
				{name: "price", dataType: "numeric"},
				{name: "stock", dataType: "integer"},
			},
			rows: [][]any{
				{1, "Keyboard", 49.90, 120},
				{2, "Monitor", 219.00, 35},
				{3, "Mouse", 19.50, 300},
			},
			indexes: []index{
				{name: "products_pkey", columns: []string{"id"}, unique: true, primary: true},
			},
		},
		{
			name: "orders",
			columns: []column{
				{name: "id", dataType: "integer", primary: true},
				{name: "customer_id", dataType: "integer"},
				{name: "product_id", dataType: "integer"},
				{name: "quantity", dataType: "integer"},
				{name: "status", dataType: "text"},
			},
			rows: [][]any{
				{1, 1, 2, 1, "shipped"},
				{2, 2, 1, 2, "pending"},
				{3, 3, 3, 5, "shipped"},
				{4, 1, 3, 1, "cancelled"},
			},
			indexes: []index{
				{name: "orders_pkey", columns: []string{"id"}, unique: true, primary: true},
				{name: "orders_customer_id_idx", columns: []string{"customer_id"}},
			},
			fks: []fk{
				{column: "customer_id", refTable: "customers", refColumn: "id"},
				{column: "product_id", refTable: "products", refColumn: "id"},
			},
		},
	}
}

type session struct {
	id       string
	user     string
	state    string
	query    string
	duration time.Duration
}

func sessions() []session {
	return []session{
		{id: "101", user: "app", state: "active", query: "SELECT * FROM orders WHERE status = 'pending'", duration: 1200 * time.Millisecond},
		{id: "102", user: "reporting", state: "idle", query: "SELECT count(*) FROM customers", duration: 15 * time.Second},
		{id: "103", user: "app", state: "idle in transaction", query: "UPDATE products SET stock = stock - 1 WHERE id = 3", duration: 4 * time.Second},
	}
}
