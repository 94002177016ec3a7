package services

import (
	"strings"

	"github.com/cabepi/lab-pbm-senasa/v1/models"
)

// ResolvePharmacy maps the selected pharmacy onto the pair the external
// protocol expects. A branch with a known principal is sent as
// {principal, branch}; everything else is sent as {own code, none}.
func ResolvePharmacy(p models.Pharmacy) models.ResolvedPharmacy {
	code := strings.TrimSpace(p.Code)

	if p.Type == models.PharmacyTypeSucursal && p.PrincipalCode != nil {
		if principal := strings.TrimSpace(*p.PrincipalCode); principal != "" {
			branch := code
			return models.ResolvedPharmacy{
				CodigoFarmacia: principal,
				CodigoSucursal: &branch,
				Name:           p.Name,
			}
		}
	}

	return models.ResolvedPharmacy{CodigoFarmacia: code, Name: p.Name}
}
