package api

import "time"

// Resource types mirror the Spinr backend's JSON wire format (snake_case
// field names, string IDs).

// UserProfile is the account behind the current session, rider or driver.
type UserProfile struct {
	ID              string    `json:"id"`
	Phone           string    `json:"phone"`
	FirstName       string    `json:"first_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	Email           string    `json:"email,omitempty"`
	Gender          string    `json:"gender,omitempty"`
	ProfileImage    string    `json:"profile_image,omitempty"`
	Role            string    `json:"role"`
	CreatedAt       time.Time `json:"created_at"`
	ProfileComplete bool      `json:"profile_complete"`
	IsDriver        bool      `json:"is_driver"`
}

// DriverProfile is the driver-side record for accounts with is_driver set.
type DriverProfile struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id,omitempty"`
	Name          string            `json:"name"`
	Phone         string            `json:"phone"`
	PhotoURL      string            `json:"photo_url,omitempty"`
	VehicleTypeID string            `json:"vehicle_type_id"`
	VehicleMake   string            `json:"vehicle_make"`
	VehicleModel  string            `json:"vehicle_model"`
	VehicleColor  string            `json:"vehicle_color"`
	VehicleYear   int               `json:"vehicle_year,omitempty"`
	LicensePlate  string            `json:"license_plate"`
	City          string            `json:"city,omitempty"`
	Documents     map[string]string `json:"documents,omitempty"`
	IsVerified    bool              `json:"is_verified"`
	Rating        float64           `json:"rating"`
	TotalRides    int               `json:"total_rides"`
	Lat           float64           `json:"lat"`
	Lng           float64           `json:"lng"`
	IsOnline      bool              `json:"is_online"`
	IsAvailable   bool              `json:"is_available"`
}

// VehicleType is a bookable vehicle class (reference data).
type VehicleType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Capacity    int    `json:"capacity"`
	ImageURL    string `json:"image_url,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ServiceArea is an operating polygon (reference data).
type ServiceArea struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	City       string   `json:"city"`
	Polygon    []LatLng `json:"polygon"`
	IsActive   bool     `json:"is_active"`
	IsAirport  bool     `json:"is_airport"`
	AirportFee float64  `json:"airport_fee"`
}

// FareQuote is the per-vehicle-type pricing for a pickup location.
type FareQuote struct {
	VehicleType   VehicleType `json:"vehicle_type"`
	BaseFare      float64     `json:"base_fare"`
	PerKmRate     float64     `json:"per_km_rate"`
	PerMinuteRate float64     `json:"per_minute_rate"`
	MinimumFare   float64     `json:"minimum_fare"`
	BookingFee    float64     `json:"booking_fee"`
}

// DocumentRequirement is an onboarding document a driver must provide.
type DocumentRequirement struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	IsMandatory      bool   `json:"is_mandatory"`
	RequiresBackSide bool   `json:"requires_back_side"`
}

// DriverDocument is an uploaded document and its review status.
type DriverDocument struct {
	ID              string    `json:"id"`
	DriverID        string    `json:"driver_id"`
	RequirementID   string    `json:"requirement_id,omitempty"`
	DocumentType    string    `json:"document_type"`
	DocumentURL     string    `json:"document_url"`
	Side            string    `json:"side,omitempty"`
	Status          string    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	UploadedAt      time.Time `json:"uploaded_at"`
}

// AuthResponse is the verify-code result: a bearer token plus the profile
// it belongs to.
type AuthResponse struct {
	Token     string      `json:"token"`
	User      UserProfile `json:"user"`
	IsNewUser bool        `json:"is_new_user"`
}

// SendCodeRequest starts a phone sign-in.
type SendCodeRequest struct {
	Phone string `json:"phone"`
}

// CodeDelivery acknowledges a verification code send. DevCode is populated
// only by development backends that skip SMS delivery.
type CodeDelivery struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	DevCode string `json:"dev_otp,omitempty"`
}

// VerifyCodeRequest completes a phone sign-in.
type VerifyCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// CreateProfileRequest fills in the account after first sign-in.
type CreateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Gender    string `json:"gender"`
}
