// Package platform is the C3 platform client: a thin, retrying HTTP wrapper
// around the marketplace's order/inventory/item API. It never returns the
// platform's own status vocabulary to callers — every non-2xx response is
// translated into one of the coreerr kinds.
package platform

import (
	"encoding/base64"
	"fmt"

	"github.com/omniful/inventory-reconciler/internal/coreerr"
	"github.com/omniful/inventory-reconciler/internal/models"
)

// Credentials is a store's resolved service secret + license key, plus the
// optional shop URL the platform uses to scope requests to one storefront.
type Credentials struct {
	StoreID       string
	ServiceSecret string
	LicenseKey    string
	ShopURL       string
}

// AuthHeader builds the "ESA base64(secret:key)" header the platform expects
// on every call.
func (c Credentials) AuthHeader() string {
	raw := fmt.Sprintf("%s:%s", c.ServiceSecret, c.LicenseKey)
	return "ESA " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// CredentialsFromAPIConfig resolves a store's api_config jsonb blob into
// Credentials, falling back to the deployment-wide defaults when the store
// omits its own secret/key. Returns *coreerr.CredentialsMissing if neither
// the store nor the defaults supply a usable pair.
func CredentialsFromAPIConfig(cfg models.JSONMap, defaultSecret, defaultKey, storeID string) (Credentials, error) {
	secret := cfg.GetString("serviceSecret")
	if secret == "" {
		secret = defaultSecret
	}
	key := cfg.GetString("licenseKey")
	if key == "" {
		key = defaultKey
	}
	if secret == "" || key == "" {
		return Credentials{}, &coreerr.CredentialsMissing{StoreID: storeID}
	}
	return Credentials{
		StoreID:       storeID,
		ServiceSecret: secret,
		LicenseKey:    key,
		ShopURL:       cfg.GetString("shopUrl"),
	}, nil
}
