package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Fields is a flat view over heterogeneous caller input: query parameters or a
// decoded JSON object. Nested objects are reachable through accessors.
type Fields map[string]any

// FieldsFromQuery keeps the first value of each query parameter.
func FieldsFromQuery(q url.Values) Fields {
	f := make(Fields, len(q))
	for k, v := range q {
		if len(v) > 0 {
			f[k] = v[0]
		}
	}
	return f
}

// fieldAlias is one recognized input key and how to read it.
type fieldAlias struct {
	key string
	get func(Fields) (any, bool)
}

func top(key string) fieldAlias {
	return fieldAlias{key: key, get: func(f Fields) (any, bool) {
		v, ok := f[key]
		return v, ok
	}}
}

func nested(parent, key string) fieldAlias {
	return fieldAlias{key: parent + "." + key, get: func(f Fields) (any, bool) {
		obj, ok := f[parent].(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := obj[key]
		return v, ok
	}}
}

// Alias tables, in priority order. Keys are case-sensitive and the first
// present, non-empty key wins.
var (
	placeRefAliases = []fieldAlias{
		top("placeId"), top("place_id"), top("destPlaceId"), top("destinationPlaceId"),
		nested("destination", "placeId"), nested("destination", "place_id"),
	}
	destNameAliases = []fieldAlias{
		top("name"), top("destName"), top("destinationName"), nested("destination", "name"),
	}
	destLatAliases = []fieldAlias{
		top("lat"), top("latitude"), top("destLat"), top("destinationLat"), top("dest_lat"),
		nested("destination", "lat"), nested("destination", "latitude"),
	}
	destLngAliases = []fieldAlias{
		top("lng"), top("lon"), top("longitude"), top("destLng"), top("destLon"),
		top("destinationLng"), top("dest_lng"),
		nested("destination", "lng"), nested("destination", "lon"), nested("destination", "longitude"),
	}
	originLatAliases = []fieldAlias{
		top("originLat"), top("vehicleLat"), top("fromLat"), top("origin_lat"),
		nested("origin", "lat"), nested("origin", "latitude"),
	}
	originLngAliases = []fieldAlias{
		top("originLng"), top("originLon"), top("vehicleLng"), top("vehicleLon"), top("fromLng"), top("origin_lng"),
		nested("origin", "lng"), nested("origin", "lon"), nested("origin", "longitude"),
	}
)

// lookup returns the first present, non-empty value and the key it came from.
func lookup(f Fields, aliases []fieldAlias) (any, string, bool) {
	for _, a := range aliases {
		v, ok := a.get(f)
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, a.key, true
	}
	return nil, "", false
}

// ResolveDestination normalizes destination input into a canonical coordinate.
// A place reference takes priority and costs exactly one upstream lookup;
// otherwise the coordinate pair is parsed directly.
func ResolveDestination(ctx context.Context, f Fields, places PlaceLookup) (Destination, error) {
	if ref, _, ok := lookup(f, placeRefAliases); ok {
		placeID := strings.TrimSpace(fmt.Sprint(ref))
		if places == nil {
			return Destination{}, fmt.Errorf("%w: place lookup is not configured", ErrUpstream)
		}
		place, err := places.PlaceDetails(ctx, placeID)
		if err != nil {
			return Destination{}, fmt.Errorf("resolve place %q: %w", placeID, err)
		}
		return Destination{Location: place.Location, Name: place.Name, PlaceID: placeID}, nil
	}

	loc, found, err := coordinateFrom(f, destLatAliases, destLngAliases)
	if err != nil {
		return Destination{}, fmt.Errorf("destination: %w", err)
	}
	if !found {
		return Destination{}, fmt.Errorf("%w: destination requires a place reference or a coordinate pair", ErrValidation)
	}

	dest := Destination{Location: loc}
	if name, _, ok := lookup(f, destNameAliases); ok {
		dest.Name = fmt.Sprint(name)
	}
	return dest, nil
}

// ResolveOrigin reads optional raw vehicle coordinates. found is false when
// neither axis was supplied.
func ResolveOrigin(f Fields) (LatLng, bool, error) {
	loc, found, err := coordinateFrom(f, originLatAliases, originLngAliases)
	if err != nil {
		return LatLng{}, found, fmt.Errorf("origin: %w", err)
	}
	return loc, found, nil
}

func coordinateFrom(f Fields, latAliases, lngAliases []fieldAlias) (LatLng, bool, error) {
	latRaw, latKey, hasLat := lookup(f, latAliases)
	lngRaw, lngKey, hasLng := lookup(f, lngAliases)
	if !hasLat && !hasLng {
		return LatLng{}, false, nil
	}
	if !hasLat || !hasLng {
		return LatLng{}, true, fmt.Errorf("%w: both latitude and longitude are required", ErrValidation)
	}

	lat, err := parseAxis(latRaw)
	if err != nil {
		return LatLng{}, true, fmt.Errorf("%w: %s: %v", ErrValidation, latKey, err)
	}
	lng, err := parseAxis(lngRaw)
	if err != nil {
		return LatLng{}, true, fmt.Errorf("%w: %s: %v", ErrValidation, lngKey, err)
	}

	loc := LatLng{Lat: lat, Lng: lng}
	if err := loc.Validate(); err != nil {
		return LatLng{}, true, err
	}
	return loc, true, nil
}

func parseAxis(v any) (float64, error) {
	var (
		n   float64
		err error
	)
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		n, err = x.Float64()
	case string:
		n, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
	if err != nil {
		return 0, fmt.Errorf("not a number: %v", v)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not finite: %v", v)
	}
	return n, nil
}
