package geo

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Location is an approximate coordinate resolved from a client address.
type Location struct {
	Lat         float64
	Lon         float64
	CountryCode string
}

// Resolver turns a client IP into an approximate location.
type Resolver interface {
	Lookup(ip string) (*Location, error)
}

// MaxMindResolver reads a local GeoLite2/GeoIP2 city database.
type MaxMindResolver struct {
	db *geoip2.Reader
}

func Open(path string) (*MaxMindResolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindResolver{db: db}, nil
}

func (r *MaxMindResolver) Lookup(ip string) (*Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid ip %q", ip)
	}
	record, err := r.db.City(parsed)
	if err != nil {
		return nil, err
	}
	country := strings.ToLower(record.Country.IsoCode)
	if country == "" {
		country = "xx"
	}
	return &Location{
		Lat:         record.Location.Latitude,
		Lon:         record.Location.Longitude,
		CountryCode: country,
	}, nil
}

func (r *MaxMindResolver) Close() error {
	return r.db.Close()
}

// ClientIP extracts the originating address of an upgrade request, honoring
// reverse-proxy headers before falling back to the socket peer.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if strings.Contains(ip, "::ffff:") {
		ip = strings.Split(ip, "::ffff:")[1]
	}
	if ip == "" || ip == "::1" {
		return "127.0.0.1"
	}
	return ip
}

const earthRadiusKm = 6371.0

// DistanceKm is the haversine great-circle distance between two coordinates.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// EstimateRTT converts a distance to an estimated round-trip time in
// milliseconds: distanceKm/200 plus a 20ms floor.
func EstimateRTT(distanceKm float64) int {
	return int(math.Round(distanceKm/200 + 20))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
