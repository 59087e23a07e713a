package credentials

import (
	"context"
	"database/sql"
	"errors"
	"esimassist-backend/internal/components/assert"
	"esimassist-backend/internal/components/chrono"
	"esimassist-backend/internal/components/telemetry"
	"esimassist-backend/internal/target"
	"fmt"
	"time"

	_ "embed"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

//go:embed schema.sql
var Schema string

const (
	report_keychain_resolve = "keychain.resolve"
	report_keychain_set     = "keychain.set"
)

// Keychain stores credentials per target in a database, targets it does not know about are
// resolved by the fallback.
type Keychain struct {
	db       *sql.DB
	cache    *expirable.LRU[target.ID, Credentials]
	fallback Resolver
	clock    chrono.TimeAPI
	tel      telemetry.API
}

// NewKeychain expects Schema to already be applied to db. fallback may be nil.
func NewKeychain(db *sql.DB, fallback Resolver, clock chrono.TimeAPI, tel telemetry.API) *Keychain {
	assert.NotNil(db)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return &Keychain{
		db:       db,
		cache:    expirable.NewLRU[target.ID, Credentials](256, nil, 15*time.Minute),
		fallback: fallback,
		clock:    clock,
		tel:      telemetry.NewScopedAPI("credentials", tel),
	}
}

func (k *Keychain) Resolve(ctx context.Context, id target.ID) (Credentials, error) {
	cached, hit := k.cache.Get(id)
	if hit {
		return cached, nil
	}

	var creds Credentials
	err := k.db.QueryRowContext(
		ctx,
		"select nick, password from credentials where target = ?",
		string(id),
	).Scan(&creds.Nick, &creds.Password)
	if errors.Is(err, sql.ErrNoRows) {
		if k.fallback == nil {
			return Credentials{}, fmt.Errorf("%w for %s", ErrNoCredentials, id)
		}
		return k.fallback.Resolve(ctx, id)
	}
	if err != nil {
		k.tel.ReportBroken(report_keychain_resolve, err, id)
		return Credentials{}, err
	}

	k.cache.Add(id, creds)
	return creds, nil
}

// Set stores the credentials of a target, replacing any it had.
func (k *Keychain) Set(ctx context.Context, id target.ID, creds Credentials) error {
	if !creds.complete() {
		return fmt.Errorf("credentials for %s must have both a nick and a password", id)
	}

	_, err := k.db.ExecContext(
		ctx,
		`insert into credentials (target, nick, password, updated_at) values (?, ?, ?, ?)
		on conflict (target) do update set
			nick = excluded.nick,
			password = excluded.password,
			updated_at = excluded.updated_at`,
		string(id), creds.Nick, creds.Password, k.clock.Now().Unix(),
	)
	if err != nil {
		k.tel.ReportBroken(report_keychain_set, err, id)
		return err
	}

	k.cache.Add(id, creds)
	k.tel.ReportDebug(report_keychain_set, id, creds.Nick)
	return nil
}

// Delete removes a target's stored credentials, after which the fallback applies again.
func (k *Keychain) Delete(ctx context.Context, id target.ID) error {
	_, err := k.db.ExecContext(ctx, "delete from credentials where target = ?", string(id))
	if err != nil {
		return err
	}
	k.cache.Remove(id)
	return nil
}

// Entry describes stored credentials without their secret.
type Entry struct {
	Target    target.ID
	Nick      string
	UpdatedAt time.Time
}

// List returns every stored entry ordered by target.
func (k *Keychain) List(ctx context.Context) ([]Entry, error) {
	rows, err := k.db.QueryContext(ctx, "select target, nick, updated_at from credentials order by target")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			id        string
			updatedAt int64
		)
		err := rows.Scan(&id, &entry.Nick, &updatedAt)
		if err != nil {
			return nil, err
		}
		entry.Target = target.ID(id)
		entry.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
