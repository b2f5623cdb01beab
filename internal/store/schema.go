package store

import "context"

// Schema creates the engine's tables. Applied with EnsureSchema on startup;
// idempotent so restarts are safe.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	venue_id uuid NOT NULL,
	full_name text NOT NULL,
	email text NOT NULL UNIQUE,
	hashed_password text NOT NULL,
	pin text,
	role text NOT NULL CHECK (role IN ('OWNER','MANAGER','CASHIER','KITCHEN')),
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	venue_id uuid NOT NULL,
	order_number text NOT NULL,
	service_type text NOT NULL CHECK (service_type IN ('DINE_IN','TAKEAWAY')),
	status text NOT NULL DEFAULT 'NEW'
		CHECK (status IN ('NEW','SENT','IN_PREP','READY','SERVED','CLOSED','VOIDED')),
	table_number text,
	notes text,
	subtotal numeric(14,2) NOT NULL DEFAULT 0,
	tax_total numeric(14,2) NOT NULL DEFAULT 0,
	discount_total numeric(14,2) NOT NULL DEFAULT 0,
	service_charge numeric(14,2) NOT NULL DEFAULT 0,
	gross_total numeric(14,2) NOT NULL DEFAULT 0,
	rounding_delta numeric(14,2) NOT NULL DEFAULT 0,
	discount_type text CHECK (discount_type IN ('PERCENTAGE','FIXED_AMOUNT')),
	discount_value numeric(14,2),
	currency_code text NOT NULL DEFAULT 'IDR',
	assigned_to uuid NOT NULL,
	created_by uuid NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	closed_at timestamptz,
	UNIQUE (venue_id, order_number)
);
CREATE INDEX IF NOT EXISTS idx_orders_venue_status ON orders (venue_id, status);

CREATE TABLE IF NOT EXISTS order_items (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	order_id uuid NOT NULL REFERENCES orders(id),
	menu_item_ref text NOT NULL,
	name text NOT NULL,
	quantity integer NOT NULL CHECK (quantity > 0),
	unit_price numeric(14,2) NOT NULL,
	line_net numeric(14,2) NOT NULL DEFAULT 0,
	line_tax numeric(14,2) NOT NULL DEFAULT 0,
	tax_code text NOT NULL DEFAULT '',
	tax_rate numeric(8,6) NOT NULL DEFAULT 0,
	tax_inclusive boolean NOT NULL DEFAULT false,
	course text,
	seat integer,
	status text NOT NULL DEFAULT 'PENDING'
		CHECK (status IN ('PENDING','SENT','PREPARING','READY','SERVED','VOIDED')),
	void_reason text,
	station text,
	notes text,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id);

CREATE TABLE IF NOT EXISTS payments (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	order_id uuid NOT NULL REFERENCES orders(id),
	method text NOT NULL,
	amount numeric(14,2) NOT NULL,
	amount_received numeric(14,2),
	change_amount numeric(14,2),
	processed_by uuid NOT NULL,
	processed_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_events (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	venue_id uuid NOT NULL,
	order_id uuid NOT NULL,
	from_status text NOT NULL,
	to_status text NOT NULL,
	actor_id uuid NOT NULL,
	actor_role text NOT NULL,
	kind text NOT NULL,
	reason text,
	metadata jsonb NOT NULL DEFAULT '{}',
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_events_venue_actor ON audit_events (venue_id, actor_id, created_at);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	key uuid PRIMARY KEY,
	venue_id uuid NOT NULL,
	endpoint text NOT NULL,
	order_id uuid,
	status_code integer NOT NULL,
	response jsonb NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);
`

// EnsureSchema applies the schema to the given database.
func EnsureSchema(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, Schema)
	return err
}
