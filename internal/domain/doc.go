// Package domain models per-country annual aggregates of a gridded climate
// variable.
//
// # Data Source
//
// The grid is ERA5 monthly-averaged 2 m temperature from the Copernicus
// Climate Data Store, stored locally as one NetCDF file per year. Values
// arrive in Kelvin over named (time, latitude, longitude) axes; the
// aggregation core converts to Celsius at ingestion. Country boundaries come
// from a GeoJSON FeatureCollection (datasets/geo-countries derivative of
// Natural Earth admin-0), which is known to contain null, empty, and
// self-intersecting geometries — sanitization is mandatory, not optional.
//
// # Aggregation Conventions
//
// One AggregateRecord is produced per (country, year):
//
//	Direct coverage: a mean over every grid cell whose center falls inside
//	the country polygon, weighting each latitude row by cos(latitude) to
//	approximate true cell area on the sphere, then an arithmetic mean of the
//	per-step values within the calendar year.
//
//	Fallback: countries too small or too narrow to cover any cell center are
//	assigned the time series of the single grid cell nearest (great-circle)
//	to a robust interior point of their polygon, capped at a maximum
//	distance. Beyond the cap the country is reported in the audit log and
//	omitted rather than given a far-away value.
//
// Overlapping country polygons may each claim the same grid cell; masks are
// evaluated independently and small double counting is accepted.
//
// # Fallback audit statuses
//
//	no_geometry             country polygon was null or empty after sanitization
//	no_cell_within_<cap>km  nearest cell center exceeded the distance cap
//	no_data                 nearest cell held only fill values for the year
//	fallback_used           nearest-cell series was adopted
//
// Every attempted country produces exactly one audit entry per processed
// year, success or failure.
//
// # Output contract
//
// Partition rows are exactly {country, year, temp_c}, sorted by
// (country, year). When a direct and a fallback record exist for the same
// key, the direct record wins. Identical inputs must reproduce byte-identical
// partition files; nothing time- or order-nondeterministic may reach the
// persisted rows.
package domain
