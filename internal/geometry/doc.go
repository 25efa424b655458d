// Package geometry loads, sanitizes, and indexes country boundary polygons.
//
// Sanitization runs in a metric equal-area CRS so buffer distances are real
// meters: null/empty rows are dropped, the country-name attribute is resolved
// from a fixed priority list, minor self-intersections are repaired with a
// zero-width buffer, optionally followed by a full validity repair, and small
// geometries are grown by a configurable buffer so islands and narrow shapes
// still intersect at least one grid cell center. The cleaned set is projected
// back to the output CRS.
//
// Geometry operations are backed by GEOS; reprojection by proj4 spatial
// references. Consumers see only the Shape capability interface, so the
// masking and fallback code is independent of the geometry engine.
package geometry
