package entitlements

import "strings"

type Plan string

const (
	PlanBasic   Plan = "basic"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

const gib int64 = 1 << 30

// Limits describes what a plan allows inside the album app. A value of zero
// for MaxAlbums or MaxPhotosPerAlbum means unlimited.
type Limits struct {
	MaxAlbums         int   `json:"max_albums"`
	MaxPhotosPerAlbum int   `json:"max_photos_per_album"`
	StorageQuotaBytes int64 `json:"storage_quota_bytes"`
	SharedAlbums      bool  `json:"shared_albums"`
	OriginalDownloads bool  `json:"original_downloads"`
}

// Plans lists all plans in upgrade order.
func Plans() []Plan {
	return []Plan{PlanBasic, PlanPro, PlanPremium}
}

// Normalize maps a stored plan string to a Plan, falling back to basic.
func Normalize(raw string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanPro:
		return PlanPro
	case PlanPremium:
		return PlanPremium
	default:
		return PlanBasic
	}
}

// ForPlan returns the limits of a plan. Unknown plans get the basic limits.
func ForPlan(plan Plan) Limits {
	switch plan {
	case PlanPremium:
		return Limits{
			StorageQuotaBytes: 1024 * gib,
			SharedAlbums:      true,
			OriginalDownloads: true,
		}
	case PlanPro:
		return Limits{
			MaxAlbums:         100,
			MaxPhotosPerAlbum: 2000,
			StorageQuotaBytes: 100 * gib,
			SharedAlbums:      true,
		}
	default:
		return Limits{
			MaxAlbums:         5,
			MaxPhotosPerAlbum: 200,
			StorageQuotaBytes: 2 * gib,
		}
	}
}

// Effective returns the limits a user actually gets. Without an entitling
// subscription every user is held to the basic plan, whatever is stored.
func Effective(plan Plan, entitled bool) Limits {
	if !entitled {
		return ForPlan(PlanBasic)
	}
	return ForPlan(plan)
}
