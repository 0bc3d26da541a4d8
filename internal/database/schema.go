package database

// Schema is the persisted layout of the ledger. offers and offer_redemptions are
// the capped resource and its consumption records.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id          UUID PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	kind        TEXT NOT NULL CHECK (kind IN ('wallet', 'cashback')),
	balance     NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	currency    CHAR(3) NOT NULL,
	version     BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (owner_id, kind)
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id             UUID PRIMARY KEY,
	account_id     UUID NOT NULL REFERENCES accounts(id),
	direction      TEXT NOT NULL CHECK (direction IN ('credit', 'debit')),
	amount         NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
	balance_after  NUMERIC(20, 2) NOT NULL CHECK (balance_after >= 0),
	reason         TEXT NOT NULL,
	related_type   TEXT,
	related_id     TEXT,
	metadata       JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ledger_entries_account_created_idx ON ledger_entries (account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS ledger_entries_related_idx ON ledger_entries (related_type, related_id);

CREATE TABLE IF NOT EXISTS external_payment_events (
	id                  UUID PRIMARY KEY,
	provider            TEXT NOT NULL,
	provider_reference  TEXT NOT NULL,
	amount              NUMERIC(20, 2) NOT NULL,
	currency            CHAR(3) NOT NULL,
	destination         TEXT NOT NULL,
	raw_payload         JSONB,
	received_at         TIMESTAMPTZ NOT NULL,
	linked_account_id   UUID REFERENCES accounts(id),
	ledger_entry_id     UUID REFERENCES ledger_entries(id),
	UNIQUE (provider, provider_reference)
);

CREATE TABLE IF NOT EXISTS offers (
	id               UUID PRIMARY KEY,
	title            TEXT NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('draft', 'active', 'paused', 'expired', 'cancelled')),
	per_user_limit   INTEGER CHECK (per_user_limit > 0),
	global_limit     INTEGER CHECK (global_limit > 0),
	usage_count      INTEGER NOT NULL DEFAULT 0 CHECK (global_limit IS NULL OR usage_count <= global_limit),
	cashback_amount  NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (cashback_amount >= 0),
	currency         CHAR(3) NOT NULL,
	starts_at        TIMESTAMPTZ NOT NULL,
	ends_at          TIMESTAMPTZ NOT NULL,
	created_by       TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (ends_at > starts_at)
);

CREATE TABLE IF NOT EXISTS offer_redemptions (
	id                   UUID PRIMARY KEY,
	offer_id             UUID NOT NULL REFERENCES offers(id),
	actor_id             TEXT NOT NULL,
	price_paid           NUMERIC(20, 2) NOT NULL,
	discount             NUMERIC(20, 2) NOT NULL,
	operator_product_id  TEXT,
	supplier_mapping_id  TEXT,
	cashback_entry_id    UUID REFERENCES ledger_entries(id),
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK ((operator_product_id IS NULL) <> (supplier_mapping_id IS NULL))
);
CREATE INDEX IF NOT EXISTS offer_redemptions_offer_actor_idx ON offer_redemptions (offer_id, actor_id);

CREATE TABLE IF NOT EXISTS offer_eligibility_rules (
	offer_id  UUID NOT NULL REFERENCES offers(id),
	actor_id  TEXT NOT NULL,
	rule      TEXT NOT NULL CHECK (rule IN ('allow', 'deny')),
	PRIMARY KEY (offer_id, actor_id)
);
`
