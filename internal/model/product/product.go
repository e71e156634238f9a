package product

// Product is one listing returned by the product search capability.
type Product struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Image            string `json:"image"`
	Price            string `json:"price"`
	MerchantDomain   string `json:"merchantDomain"`
	MerchantLogoPath string `json:"merchantLogoPath,omitempty"`
	Region           string `json:"region,omitempty"`
	IsOutOfStock     bool   `json:"isOutOfStock"`
	DirectURL        string `json:"directUrl"`
}
