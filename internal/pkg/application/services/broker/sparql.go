package broker

import (
	"fmt"
	"strings"
)

// n3 wraps a URI in angle brackets unless the value already is a
// serialized IRI. Identifiers coming back from tabular query results keep
// their brackets and must not be wrapped twice.
func n3(uri string) string {
	if strings.HasPrefix(uri, "<") && strings.HasSuffix(uri, ">") {
		return uri
	}
	return "<" + uri + ">"
}

// describeQuery selects all triples describing the given resources,
// matching both their broker-internal subjects (via owl:sameAs) and their
// external identifiers.
func describeQuery(resources []string) string {
	var sb strings.Builder

	sb.WriteString("PREFIX owl: <http://www.w3.org/2002/07/owl#>\n")
	sb.WriteString("SELECT ?s ?p ?o\nWHERE {\n")

	parts := make([]string, 0, len(resources))
	for _, res := range resources {
		iri := n3(res)
		part := "{ ?s2 ?p ?o .\n" +
			"  ?s2 owl:sameAs " + iri + " .\n" +
			"  BIND (URI(" + iri + ") as ?s ) .}\n" +
			"UNION { " + iri + " ?p ?o .\n" +
			"  BIND (URI(" + iri + ") as ?s ) .}"
		parts = append(parts, part)
	}

	sb.WriteString(strings.Join(parts, "\nUNION\n"))
	sb.WriteString("}")

	return sb.String()
}

// allResourcesQuery selects every offered resource known to the broker,
// excluding those announced by the local node itself. An optional asset
// type narrows the selection and an optional full text query filters on
// title, description and external name.
func allResourcesQuery(localNodeName, resourceType, ftsQuery string) string {
	const typePred = "https://www.trusts-data.eu/ontology/asset_type"

	var sb strings.Builder

	sb.WriteString("PREFIX owl: <http://www.w3.org/2002/07/owl#>\n")
	sb.WriteString("PREFIX ids: <https://w3id.org/idsa/core/>\n")
	sb.WriteString("SELECT ?resultUri ?type ?title ?description ?assettype ?externalname ?license\n")
	sb.WriteString("WHERE\n{ ?resultUri a ?type .\n")
	sb.WriteString("  ?conn <https://w3id.org/idsa/core/offeredResource> ?resultUri .\n")
	sb.WriteString("  ?resultUri ids:title ?title .\n")
	sb.WriteString("  ?resultUri ids:description ?description .\n")
	sb.WriteString("  ?resultUri owl:sameAs ?externalname .\n")
	sb.WriteString("  ?resultUri ids:standardLicense ?license .\n")
	sb.WriteString(fmt.Sprintf("  FILTER (!regex(str(?externalname),\"%s\",\"i\"))\n", localNodeName))

	if resourceType == "" {
		sb.WriteString("  ?resultUri " + n3(typePred) + " ?assettype .\n")
	} else {
		typeURI := "https://www.trusts-data.eu/ontology/" + capitalize(resourceType)
		sb.WriteString("  ?resultUri " + n3(typePred) + " ?assettype .\n")
		sb.WriteString("  values ?assettype { " + n3(typeURI) + " }\n")
	}

	if ftsQuery != "" {
		sb.WriteString(fmt.Sprintf("  FILTER regex(concat(?title, \" \",?description, \" \",str(?externalname)), \"%s\", \"i\")\n", ftsQuery))
	}

	sb.WriteString("}")

	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// resourcesInCatalogsQuery selects all resources owned by any of the given
// catalogs, one UNION branch per catalog.
func resourcesInCatalogsQuery(catalogIRIs []string) string {
	var sb strings.Builder

	sb.WriteString("PREFIX ids: <https://w3id.org/idsa/core/>\n")
	sb.WriteString("SELECT ?resultUri\nWHERE {\n")

	parts := make([]string, 0, len(catalogIRIs))
	for _, cat := range catalogIRIs {
		parts = append(parts, "{ "+n3(cat)+" ids:offeredResource ?resultUri . }")
	}

	sb.WriteString(strings.Join(parts, "\nUNION\n"))
	sb.WriteString("\n}")

	return sb.String()
}

// ParseTabular parses a broker SELECT response: tab separated rows with a
// header row of ?-prefixed column names. Blank rows are skipped, cell
// values are stripped of surrounding whitespace but keep their <> IRI
// wrapping.
func ParseTabular(raw string) []map[string]string {
	result := []map[string]string{}
	colnames := []string{}

	for irow, row := range strings.Split(raw, "\n") {
		row = strings.TrimSpace(row)
		if len(row) < 1 {
			continue
		}

		vals := strings.Split(row, "\t")

		if irow == 0 {
			for _, v := range vals {
				colnames = append(colnames, strings.ReplaceAll(v, "?", ""))
			}
			continue
		}

		record := map[string]string{}
		for ci, cname := range colnames {
			if ci < len(vals) {
				record[cname] = strings.TrimSpace(vals[ci])
			}
		}
		result = append(result, record)
	}

	return result
}
