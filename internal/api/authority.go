package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/smokyabdulrahman/ezan-vakti/internal/geo"
	"github.com/smokyabdulrahman/ezan-vakti/internal/observability"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
)

// DefaultAuthorityBaseURL is the authority's public endpoint.
const DefaultAuthorityBaseURL = "https://ezanvakti.emushaf.net"

// DistrictIDs caches the city administrative id to district id mapping.
type DistrictIDs interface {
	Get(ctx context.Context, administrativeID string) (string, bool, error)
	Put(ctx context.Context, administrativeID, districtID string) error
}

// Authority fetches a year of prayer times for a city from the authority.
type Authority struct {
	// BaseURL is exported for testing with httptest.
	BaseURL string

	t         *transport
	gazetteer *geo.Gazetteer
	districts DistrictIDs
}

// NewAuthority creates an authority client. districts may be nil, in which
// case the district listing is fetched on every call.
func NewAuthority(opts Options, gazetteer *geo.Gazetteer, districts DistrictIDs) *Authority {
	if gazetteer == nil {
		gazetteer = geo.DefaultGazetteer()
	}
	return &Authority{
		BaseURL:   DefaultAuthorityBaseURL,
		t:         newTransport(opts),
		gazetteer: gazetteer,
		districts: districts,
	}
}

// Districts lists the districts of a city by administrative id.
func (a *Authority) Districts(ctx context.Context, administrativeID string) ([]District, error) {
	endpoint := fmt.Sprintf("%s/ilceler/%s", strings.TrimRight(a.BaseURL, "/"), url.PathEscape(administrativeID))

	var districts []District
	if err := a.t.getJSON(ctx, "authority", endpoint, &districts); err != nil {
		return nil, fmt.Errorf("%w: districts of %s: %w", ErrAuthorityUnreachable, administrativeID, err)
	}
	if len(districts) == 0 {
		return nil, fmt.Errorf("%w: districts of %s: %w", ErrAuthorityUnreachable, administrativeID, ErrEmptyResponse)
	}
	return districts, nil
}

// DistrictID returns the district id for the city's centre, consulting the
// cache first. The district whose name normalizes equal to the city wins,
// otherwise the first listed district.
func (a *Authority) DistrictID(ctx context.Context, city geo.City) (string, error) {
	if a.districts != nil {
		id, ok, err := a.districts.Get(ctx, city.AdministrativeID)
		if err != nil {
			a.t.logger.Warn().Err(err).Str(observability.FieldCity, city.Name).Msg("district cache read failed")
		} else if ok {
			return id, nil
		}
	}

	districts, err := a.Districts(ctx, city.AdministrativeID)
	if err != nil {
		return "", err
	}

	id := string(centerDistrict(city.Name, districts).ID)
	if id == "" {
		return "", fmt.Errorf("%w: district of %s has no id", ErrAuthorityUnreachable, city.Name)
	}

	if a.districts != nil {
		if err := a.districts.Put(ctx, city.AdministrativeID, id); err != nil {
			a.t.logger.Warn().Err(err).Str(observability.FieldCity, city.Name).Msg("district cache write failed")
		}
	}
	return id, nil
}

func centerDistrict(cityName string, districts []District) District {
	want := geo.NormalizeName(cityName)
	for _, d := range districts {
		if geo.NormalizeName(d.Name) == want || geo.NormalizeName(d.NameEn) == want {
			return d
		}
	}
	return districts[0]
}

// FetchYear fetches every day the authority publishes for cityName, keyed
// by DD.MM.YYYY. Days without a date or with malformed times are dropped.
func (a *Authority) FetchYear(ctx context.Context, cityName string) (prayer.Days, error) {
	city, ok := a.gazetteer.Lookup(cityName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCityUnknown, cityName)
	}

	districtID, err := a.DistrictID(ctx, city)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/vakitler/%s", strings.TrimRight(a.BaseURL, "/"), url.PathEscape(districtID))

	var raw []authorityDay
	if err := a.t.getJSON(ctx, "authority", endpoint, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorityUnreachable, err)
	}

	days := make(prayer.Days, len(raw))
	for _, d := range raw {
		key, ok := normalizeDateKey(d.Date)
		if !ok {
			continue
		}
		times := d.times()
		if err := times.Validate(); err != nil {
			a.t.logger.Debug().Err(err).Str("date", d.Date).Msg("dropping authority day")
			continue
		}
		days[key] = times
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAuthorityUnreachable, ErrEmptyResponse)
	}
	return days, nil
}
