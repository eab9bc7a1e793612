package fields

// defaultMappings covers the CTI sources seen in practice: MITRE ATT&CK and
// other STIX 2.x producers, OpenCTI exports, MISP galaxies, Malpedia, vendor
// threat actor catalogs and security bulletins.
var defaultMappings = []Mapping{
	{Field: Title, Aliases: []string{"name", "threat_actor_name", "title", "label", "headline"}},
	{Field: Summary, Aliases: []string{"description", "summary", "solution", "details", "overview", "abstract"}},
	{Field: ObjectType, Aliases: []string{"type", "entity_type", "threat_type", "category"}},
	{Field: Identifier, Aliases: []string{"id", "standard_id", "mitre_id", "misp_id", "external_id", "identifier", "uuid"}},
	{Field: URL, Aliases: []string{"urls", "url", "link", "reference_url"}},
	{Field: Created, Aliases: []string{"created", "date_added", "first_seen", "created_time", "published", "date_published"}},
	{Field: Modified, Aliases: []string{"modified", "last_updated", "last_seen", "updated_time", "updated"}},
	{Field: Attribution, Aliases: []string{"attribution", "attributed_to"}},
	{Field: Country, Aliases: []string{"country", "origin_country"}},
	{Field: Aliases, Aliases: []string{"aliases", "x_mitre_aliases", "vendor_names_for_threat_actors", "associated_groups"}},
	{Field: CVE, Aliases: []string{"cve", "cves", "cve_references", "cve_ids", "vulnerabilities"}},
	{Field: Techniques, Aliases: []string{"associated_mitre_attack_techniques", "techniques", "ttps", "attack_patterns"}},
	{Field: Tactics, Aliases: []string{"tactics", "kill_chain_phases"}},
	{Field: Platforms, Aliases: []string{"x_mitre_platforms", "platforms"}},
	{Field: DataSources, Aliases: []string{"x_mitre_data_sources", "data_sources"}},
	{Field: Detection, Aliases: []string{"x_mitre_detection", "detection"}},
	{Field: Indicators, Aliases: []string{"indicators", "iocs", "observables"}},
	{Field: Labels, Aliases: []string{"labels", "tags"}},
	{Field: Targets, Aliases: []string{"vendors_and_products_targeted", "affected_products", "targets"}},
	{Field: TargetedCountries, Aliases: []string{"targeted_countries"}},
	{Field: TargetedIndustries, Aliases: []string{"targeted_industries", "targeted_sectors"}},
	{Field: RelatedActors, Aliases: []string{"related_actors"}},
	{Field: Severity, Aliases: []string{"severity", "cvss", "risk"}},
	{Field: Confidence, Aliases: []string{"confidence"}},
	{Field: Pattern, Aliases: []string{"pattern"}},
	{Field: References, Aliases: []string{"external_references", "references"}},
	{Field: MalpediaURL, Aliases: []string{"malpedia_url"}},
	{Field: MISPThreatActor, Aliases: []string{"misp_threat_actor"}},
	{Field: MITREAttackGroup, Aliases: []string{"mitre_attack_group"}},
	{Field: Version, Aliases: []string{"x_mitre_version", "version"}},
	{Field: Objects, Aliases: []string{"objects"}},
}

var defaultTable = MustTable(defaultMappings...)

// Default returns the built-in CTI alias table.
func Default() *Table { return defaultTable }
