package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zhouzirui/commerce-router/internal/model/profile"
)

// Get reads one row of the profiles table. A missing row is (nil, nil).
func (d *DB) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	var (
		p                              profile.Profile
		name, phone, email, addressRaw sql.NullString
	)
	err := d.db.QueryRowContext(ctx, d.rebind(`SELECT id, full_name, phone, email, address FROM profiles WHERE id = ?`), userID).
		Scan(&p.ID, &name, &phone, &email, &addressRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}

	p.FullName = name.String
	p.Phone = phone.String
	p.Email = email.String
	p.Address = profile.ParseAddress(addressRaw.String)
	return &p, nil
}

// PutProfile upserts a profile row. Profiles are owned elsewhere; this is
// used to seed local databases.
func (d *DB) PutProfile(ctx context.Context, p profile.Profile) error {
	var address sql.NullString
	if p.HasAddress() {
		address = sql.NullString{String: encodeAddress(p.Address), Valid: true}
	}
	_, err := d.db.ExecContext(ctx, d.rebind(`INSERT INTO profiles (id, full_name, phone, email, address)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET full_name = excluded.full_name, phone = excluded.phone,
			email = excluded.email, address = excluded.address`),
		p.ID, p.FullName, p.Phone, p.Email, address)
	if err != nil {
		return fmt.Errorf("put profile %s: %w", p.ID, err)
	}
	return nil
}

func encodeAddress(a *profile.Address) string {
	if !a.Structured() {
		return a.Text
	}
	data, err := a.MarshalJSON()
	if err != nil {
		return a.String()
	}
	return string(data)
}
