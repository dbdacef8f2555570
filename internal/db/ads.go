package db

import (
	"context"
	"fmt"
	"strings"
)

const adColumns = `id, owner_id, business_name, title, content, image_url, cta_url, cta_text,
	suburb, region, status, daily_budget_cents, impressions, clicks, created_at, updated_at`

func scanAd(s rowScanner) (*Ad, error) {
	var a Ad
	err := s.Scan(&a.ID, &a.OwnerID, &a.BusinessName, &a.Title, &a.Content, &a.ImageURL,
		&a.CTAURL, &a.CTAText, &a.Suburb, &a.Region, &a.Status, &a.DailyBudgetCents,
		&a.Impressions, &a.Clicks, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func queryAds(ctx context.Context, query string, args ...any) ([]Ad, error) {
	rows, err := DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ads: %w", err)
	}
	defer rows.Close()

	ads := []Ad{}
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		ads = append(ads, *a)
	}
	return ads, rows.Err()
}

// CreateAd stores a new placement awaiting review.
func CreateAd(ctx context.Context, a Ad) (*Ad, error) {
	a.BusinessName = strings.TrimSpace(a.BusinessName)
	a.Title = strings.TrimSpace(a.Title)
	if a.BusinessName == "" || a.Title == "" {
		return nil, fmt.Errorf("%w: business name and title are required", ErrInvalid)
	}
	if a.DailyBudgetCents < 0 {
		return nil, fmt.Errorf("%w: budget cannot be negative", ErrInvalid)
	}
	t := now()
	res, err := DB.ExecContext(ctx, `INSERT INTO ads (owner_id, business_name, title, content,
		image_url, cta_url, cta_text, suburb, region, status, daily_budget_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?)`,
		a.OwnerID, a.BusinessName, a.Title, a.Content, a.ImageURL, a.CTAURL, a.CTAText,
		a.Suburb, a.Region, a.DailyBudgetCents, t, t)
	if err != nil {
		return nil, fmt.Errorf("insert ad: %w", err)
	}
	id, _ := res.LastInsertId()
	return GetAd(ctx, id)
}

func GetAd(ctx context.Context, id int64) (*Ad, error) {
	a, err := scanAd(DB.QueryRowContext(ctx, "SELECT "+adColumns+" FROM ads WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func ListAdsByOwner(ctx context.Context, ownerID int64) ([]Ad, error) {
	return queryAds(ctx, "SELECT "+adColumns+" FROM ads WHERE owner_id = ? ORDER BY id DESC", ownerID)
}

// ListAdsByStatus lists ads for review; an empty status lists all.
func ListAdsByStatus(ctx context.Context, status string) ([]Ad, error) {
	if status == "" {
		return queryAds(ctx, "SELECT "+adColumns+" FROM ads ORDER BY id DESC")
	}
	return queryAds(ctx, "SELECT "+adColumns+" FROM ads WHERE status = ? ORDER BY id DESC", status)
}

// AdUpdate holds the owner-editable fields; nil means unchanged.
type AdUpdate struct {
	Title            *string
	Content          *string
	ImageURL         *string
	CTAURL           *string
	CTAText          *string
	Suburb           *string
	Region           *string
	DailyBudgetCents *int64
	// Paused toggles between paused and approved.
	Paused *bool
}

// UpdateAd applies an owner's edit. Editing content of an approved or
// rejected ad sends it back to review; pausing only works on approved
// ads and resuming only on paused ones.
func UpdateAd(ctx context.Context, id, ownerID int64, upd AdUpdate) (*Ad, error) {
	a, err := GetAd(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	edited := false
	set := func(dst *string, v *string) {
		if v != nil && *v != *dst {
			*dst = *v
			edited = true
		}
	}
	set(&a.Title, upd.Title)
	set(&a.Content, upd.Content)
	set(&a.ImageURL, upd.ImageURL)
	set(&a.CTAURL, upd.CTAURL)
	set(&a.CTAText, upd.CTAText)
	set(&a.Suburb, upd.Suburb)
	set(&a.Region, upd.Region)
	if strings.TrimSpace(a.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if upd.DailyBudgetCents != nil {
		if *upd.DailyBudgetCents < 0 {
			return nil, fmt.Errorf("%w: budget cannot be negative", ErrInvalid)
		}
		a.DailyBudgetCents = *upd.DailyBudgetCents
	}
	if edited && a.Status != AdPending {
		a.Status = AdPending
	}
	if upd.Paused != nil && !edited {
		switch {
		case *upd.Paused && a.Status == AdApproved:
			a.Status = AdPaused
		case !*upd.Paused && a.Status == AdPaused:
			a.Status = AdApproved
		case *upd.Paused && a.Status == AdPaused, !*upd.Paused && a.Status == AdApproved:
		default:
			return nil, fmt.Errorf("%w: ad is %s", ErrConflict, a.Status)
		}
	}
	a.UpdatedAt = now()

	_, err = DB.ExecContext(ctx, `UPDATE ads SET title = ?, content = ?, image_url = ?, cta_url = ?,
		cta_text = ?, suburb = ?, region = ?, status = ?, daily_budget_cents = ?, updated_at = ?
		WHERE id = ?`,
		a.Title, a.Content, a.ImageURL, a.CTAURL, a.CTAText, a.Suburb, a.Region, a.Status,
		a.DailyBudgetCents, a.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update ad: %w", err)
	}
	return a, nil
}

// SetAdStatus is the admin review action.
func SetAdStatus(ctx context.Context, id int64, status string) (*Ad, error) {
	switch status {
	case AdPending, AdApproved, AdRejected, AdPaused:
	default:
		return nil, fmt.Errorf("%w: unknown ad status %q", ErrInvalid, status)
	}
	res, err := DB.ExecContext(ctx, "UPDATE ads SET status = ?, updated_at = ? WHERE id = ?",
		status, now(), id)
	if err != nil {
		return nil, fmt.Errorf("set ad status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return GetAd(ctx, id)
}

// PickPlacements chooses up to n approved ads for region (ads without a
// region run everywhere), least shown first, and counts an impression
// for each.
func PickPlacements(ctx context.Context, region string, n int) ([]Ad, error) {
	if n <= 0 {
		return []Ad{}, nil
	}
	ads, err := queryAds(ctx, "SELECT "+adColumns+` FROM ads
		WHERE status = 'approved' AND (region = '' OR ? = '' OR region = ?)
		ORDER BY impressions, id LIMIT ?`, region, region, n)
	if err != nil {
		return nil, err
	}
	for i := range ads {
		if _, err := DB.ExecContext(ctx,
			"UPDATE ads SET impressions = impressions + 1 WHERE id = ?", ads[i].ID); err != nil {
			return nil, fmt.Errorf("count impression: %w", err)
		}
		ads[i].Impressions++
	}
	return ads, nil
}

// RecordClick counts a click on an approved ad and returns it so the
// caller can redirect to the call to action.
func RecordClick(ctx context.Context, id int64) (*Ad, error) {
	res, err := DB.ExecContext(ctx,
		"UPDATE ads SET clicks = clicks + 1 WHERE id = ? AND status = 'approved'", id)
	if err != nil {
		return nil, fmt.Errorf("record click: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return GetAd(ctx, id)
}
