package production

import (
	"fmt"

	"restoran-pos/internal/apperr"
	"restoran-pos/internal/catalog"
	"restoran-pos/internal/models"

	"gorm.io/gorm"
)

// Router decides which station prepares a product.
type Router struct {
	catalog *catalog.Gateway
}

func NewRouter(g *catalog.Gateway) *Router {
	return &Router{catalog: g}
}

// Resolve returns the product's own station when it is active and belongs to the
// branch, else the branch's first active station. No station at all is a setup error
// and fails the request.
func (r *Router) Resolve(tx *gorm.DB, branchID uint, p *models.Product) (uint, error) {
	if p.StationID != nil {
		st, err := r.catalog.Station(tx, *p.StationID)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return 0, err
		}
		if err == nil && st.Active && st.BranchID == branchID {
			return st.ID, nil
		}
	}

	stations, err := r.catalog.ActiveStations(tx, branchID)
	if err != nil {
		return 0, err
	}
	if len(stations) == 0 {
		return 0, apperr.Configuration(fmt.Sprintf("no station configured for branch %d (product %q)", branchID, p.Name))
	}
	return stations[0].ID, nil
}
