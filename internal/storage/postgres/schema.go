package postgres

const schema = `
CREATE TABLE IF NOT EXISTS urls (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	processed BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS location_tags (
	id BIGSERIAL PRIMARY KEY,
	tag TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS buildings (
	id BIGSERIAL PRIMARY KEY,
	address TEXT NOT NULL UNIQUE,
	built DATE,
	total_floors INTEGER,
	has_lift BOOLEAN,
	map_url TEXT NOT NULL DEFAULT '',
	lat DOUBLE PRECISION NOT NULL,
	lng DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS building_location (
	building_id BIGINT NOT NULL REFERENCES buildings (id),
	location_id BIGINT NOT NULL REFERENCES location_tags (id),
	PRIMARY KEY (building_id, location_id)
);

CREATE TABLE IF NOT EXISTS apartments (
	id BIGSERIAL PRIMARY KEY,
	building_id BIGINT NOT NULL REFERENCES buildings (id),
	property_type TEXT NOT NULL DEFAULT '',
	rooms INTEGER,
	living_space INTEGER,
	has_balcony BOOLEAN,
	floor INTEGER,
	avgift INTEGER,
	driftskostnad INTEGER
);

CREATE INDEX IF NOT EXISTS apartments_fingerprint_idx
	ON apartments (building_id, rooms, living_space, floor);

CREATE TABLE IF NOT EXISTS sales (
	id BIGSERIAL PRIMARY KEY,
	apartment_id BIGINT NOT NULL REFERENCES apartments (id),
	url_id BIGINT NOT NULL REFERENCES urls (id),
	sale_date DATE NOT NULL,
	asked_price INTEGER,
	sold_price INTEGER
);
`
