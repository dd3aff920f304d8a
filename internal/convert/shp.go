package convert

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/guadaltel/vectors/internal/geo"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	goshp "github.com/jonas-p/go-shp"
	"github.com/rs/zerolog/log"
)

// wgs84PRJ is the projection file written next to every exported shapefile.
const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

const (
	dbfNameLen  = 10
	dbfValueLen = 254
	// maxUnzipped caps the bytes extracted from one archive.
	maxUnzipped = 10 * MaxFileSize
)

var shpExts = []string{".shp", ".shx", ".dbf", ".prj"}

// shapeGroup is one output shapefile of a bundle.
type shapeGroup struct {
	name  string
	typ   goshp.ShapeType
	kind  geo.Kind
	items []*geo.Feature
}

// encodeShapefile writes points, lines and polygons to separate shapefiles
// and zips them into a folder named after the layer. Features must already
// be free of multi-geometries.
func encodeShapefile(name string, fs []*geo.Feature) ([]byte, error) {
	groups := []*shapeGroup{
		{name: "points", typ: goshp.POINT, kind: geo.KindPoint},
		{name: "lines", typ: goshp.POLYLINE, kind: geo.KindLineString},
		{name: "polygons", typ: goshp.POLYGON, kind: geo.KindPolygon},
	}
	for _, f := range fs {
		i := slices.IndexFunc(groups, func(g *shapeGroup) bool { return g.kind == f.Kind() })
		if i < 0 {
			return nil, fmt.Errorf("%w: %q in shapefile output", geo.ErrUnknownGeometryKind, f.Kind())
		}
		groups[i].items = append(groups[i].items, f)
	}

	dir, err := os.MkdirTemp("", "vectors-shp-")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, g := range groups {
		if len(g.items) == 0 {
			continue
		}
		if err := g.write(dir); err != nil {
			return nil, fmt.Errorf("write %s: %w", g.name, err)
		}
		for _, ext := range shpExts {
			if err := addToZip(zw, filepath.Join(dir, g.name+ext), path.Join(name, g.name+ext)); err != nil {
				return nil, err
			}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *shapeGroup) write(dir string) error {
	keys := propertyKeys(g.items)
	fields := make([]goshp.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, goshp.StringField(k.column, dbfValueLen))
	}
	// A DBF table needs at least one column.
	if len(fields) == 0 {
		fields = append(fields, goshp.NumberField("FID", 10))
	}

	enc, err := shp.NewEncoderFromFields(filepath.Join(dir, g.name+".shp"), g.typ, fields...)
	if err != nil {
		return err
	}
	for i, f := range g.items {
		vals := make([]interface{}, 0, len(fields))
		if len(keys) == 0 {
			vals = append(vals, i)
		}
		for _, k := range keys {
			vals = append(vals, dbfValue(f.Properties[k.prop]))
		}
		if err := enc.EncodeFields(toShape(f.Geometry), vals...); err != nil {
			enc.Close()
			return err
		}
	}
	enc.Close()

	return os.WriteFile(filepath.Join(dir, g.name+".prj"), []byte(wgs84PRJ), 0o644)
}

type dbfColumn struct {
	prop   string
	column string
}

// propertyKeys collects the property names used by fs, sorted, with DBF
// column names truncated to ten bytes and made unique regardless of case.
func propertyKeys(fs []*geo.Feature) []dbfColumn {
	seen := map[string]bool{}
	var props []string
	for _, f := range fs {
		for k := range f.Properties {
			if !seen[k] {
				seen[k] = true
				props = append(props, k)
			}
		}
	}
	slices.Sort(props)

	// Field lookup on read ignores case.
	used := map[string]bool{}
	out := make([]dbfColumn, 0, len(props))
	for _, p := range props {
		col := truncate(p, dbfNameLen)
		for n := 1; used[strings.ToLower(col)]; n++ {
			suffix := fmt.Sprint(n)
			col = truncate(p, dbfNameLen-len(suffix)) + suffix
		}
		used[strings.ToLower(col)] = true
		out = append(out, dbfColumn{prop: p, column: col})
	}
	return out
}

func dbfValue(v any) string {
	if v == nil {
		return ""
	}
	return truncate(fmt.Sprint(v), dbfValueLen)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func addToZip(zw *zip.Writer, src, name string) error {
	f, err := os.Open(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func toShape(g geo.Geometry) geom.Geom {
	switch t := g.(type) {
	case geo.Point:
		return shapePoint(geo.Coord(t))
	case geo.LineString:
		return geom.LineString(shapePath(t))
	case geo.Polygon:
		p := make(geom.Polygon, len(t))
		for i, r := range t {
			p[i] = shapePath(r)
		}
		return p
	}
	return nil
}

func shapePoint(c geo.Coord) geom.Point {
	return geom.Point{X: c[0], Y: c[1]}
}

func shapePath(cs []geo.Coord) geom.Path {
	out := make(geom.Path, len(cs))
	for i, c := range cs {
		out[i] = shapePoint(c)
	}
	return out
}

// decodeShapefile reads every shapefile found in a zip archive. Shapes are
// transformed to WGS84 using their .prj file; a missing .prj is taken as
// WGS84.
func decodeShapefile(data []byte) ([]*geo.Feature, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "vectors-unzip-")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	stems, err := extractShapefiles(zr, dir)
	if err != nil {
		return nil, err
	}
	if len(stems) == 0 {
		return nil, fmt.Errorf("%w: no .shp file in archive", ErrUnsupportedFormat)
	}

	var out []*geo.Feature
	for _, stem := range stems {
		fs, err := readShapefile(stem)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(stem), err)
		}
		out = append(out, fs...)
	}
	return out, nil
}

// extractShapefiles writes the shapefile members of zr into dir under
// generated names and returns the path stems of the complete sets.
func extractShapefiles(zr *zip.Reader, dir string) ([]string, error) {
	ids := map[string]string{}
	var stems []string
	budget := int64(maxUnzipped)

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.HasPrefix(path.Base(zf.Name), "._") {
			continue
		}
		ext := strings.ToLower(path.Ext(zf.Name))
		if !slices.Contains(shpExts, ext) {
			continue
		}
		key := strings.ToLower(strings.TrimSuffix(zf.Name, path.Ext(zf.Name)))
		id, ok := ids[key]
		if !ok {
			id = fmt.Sprintf("layer%d", len(ids))
			ids[key] = id
		}

		n, err := extract(zf, filepath.Join(dir, id+ext), budget)
		if err != nil {
			return nil, err
		}
		budget -= n
		if ext == ".shp" {
			stems = append(stems, filepath.Join(dir, id))
		}
	}
	slices.Sort(stems)
	return stems, nil
}

func extract(zf *zip.File, dst string, budget int64) (int64, error) {
	rc, err := zf.Open()
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer func() { _ = out.Close() }()

	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if err != nil {
		return n, err
	}
	if n > budget {
		return n, fmt.Errorf("%w: archive expands beyond %d bytes", ErrFileTooLarge, maxUnzipped)
	}
	return n, nil
}

func readShapefile(stem string) ([]*geo.Feature, error) {
	for _, ext := range []string{".shx", ".dbf"} {
		if _, err := os.Stat(stem + ext); err != nil {
			return nil, fmt.Errorf("%w: missing %s", ErrUnsupportedFormat, ext)
		}
	}

	d, err := shp.NewDecoder(stem + ".shp")
	if err != nil {
		return nil, err
	}
	defer d.Close()

	trans, err := shapeTransform(d, stem+".prj")
	if err != nil {
		return nil, err
	}

	fields := d.Reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}

	var out []*geo.Feature
	for {
		g, vals, more := d.DecodeRowFields(names...)
		if !more {
			break
		}
		if g == nil {
			continue
		}
		if trans != nil {
			if g, err = g.Transform(trans); err != nil {
				return nil, err
			}
		}
		gg, err := fromShape(g)
		if err != nil {
			return nil, err
		}
		f := geo.NewFeature("", gg)
		for k, v := range vals {
			if v = strings.TrimSpace(v); v != "" {
				f.Properties[k] = v
			}
		}
		out = append(out, f)
	}
	if err := d.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// shapeTransform returns the transform from the shapefile's CRS to WGS84,
// or nil when the data already is geographic WGS84.
func shapeTransform(d *shp.Decoder, prjPath string) (proj.Transformer, error) {
	prj, err := os.ReadFile(prjPath)
	if os.IsNotExist(err) {
		log.Debug().Str("file", filepath.Base(prjPath)).Msg("No projection file, assuming WGS84")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if isWGS84(string(prj)) {
		return nil, nil
	}

	src, err := d.SR()
	if err != nil {
		return nil, fmt.Errorf("read projection: %w", err)
	}
	dst, err := proj.Parse("+proj=longlat +datum=WGS84 +no_defs")
	if err != nil {
		return nil, err
	}
	return src.NewTransform(dst)
}

func isWGS84(prj string) bool {
	prj = strings.ToUpper(strings.TrimSpace(prj))
	return strings.HasPrefix(prj, "GEOGCS[") && strings.Contains(prj, "WGS_1984")
}

func fromShape(g geom.Geom) (geo.Geometry, error) {
	switch t := g.(type) {
	case geom.Point:
		return geo.Point{t.X, t.Y}, nil
	case geom.MultiPoint:
		out := make(geo.MultiPoint, len(t))
		for i, p := range t {
			out[i] = geo.Coord{p.X, p.Y}
		}
		return out, nil
	case geom.LineString:
		return geo.LineString(fromPath(t)), nil
	case geom.MultiLineString:
		if len(t) == 1 {
			return geo.LineString(fromPath(t[0])), nil
		}
		out := make(geo.MultiLineString, len(t))
		for i, l := range t {
			out[i] = fromPath(l)
		}
		return out, nil
	case geom.Polygon:
		return fromPolygon(t), nil
	case geom.MultiPolygon:
		out := make(geo.MultiPolygon, len(t))
		for i, p := range t {
			out[i] = fromPolygon(p)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: shape %T", geo.ErrUnknownGeometryKind, g)
}

func fromPolygon(p geom.Polygon) geo.Polygon {
	out := make(geo.Polygon, len(p))
	for i, r := range p {
		out[i] = fromPath(r)
	}
	return out
}

func fromPath(ps []geom.Point) []geo.Coord {
	out := make([]geo.Coord, len(ps))
	for i, p := range ps {
		out[i] = geo.Coord{p.X, p.Y}
	}
	return out
}
