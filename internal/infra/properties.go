package infra

import (
	"strings"

	"github.com/magiconair/properties"
)

type property struct {
	key   string
	value string
}

// Agent defaults. The conf files shipped in the image are replaced as a whole,
// so everything the agent needs to start is listed here.
var defaultMinifiProperties = []property{
	{"nifi.flow.configuration.file", "./conf/config.yml"},
	{"nifi.administrative.yield.duration", "30 sec"},
	{"nifi.bored.yield.duration", "100 millis"},
	{"nifi.provenance.repository.max.storage.time", "1 MIN"},
	{"nifi.provenance.repository.max.storage.size", "1 MB"},
	{"nifi.flowfile.repository.directory.default", "${MINIFI_HOME}/flowfile_repository"},
	{"nifi.database.content.repository.directory.default", "${MINIFI_HOME}/content_repository"},
	{"nifi.provenance.repository.directory.default", "${MINIFI_HOME}/provenance_repository"},
	{"nifi.content.repository.class.name", "DatabaseContentRepository"},
	{"nifi.remote.input.secure", "false"},
	{"nifi.python.processor.dir", "${MINIFI_HOME}/minifi-python/"},
	{"nifi.extension.path", "../extensions/*"},
}

var fhsMinifiProperties = []property{
	{"nifi.flow.configuration.file", "/etc/nifi-minifi-cpp/config.yml"},
	{"nifi.flowfile.repository.directory.default", "/var/lib/nifi-minifi-cpp/flowfile_repository"},
	{"nifi.database.content.repository.directory.default", "/var/lib/nifi-minifi-cpp/content_repository"},
	{"nifi.provenance.repository.directory.default", "/var/lib/nifi-minifi-cpp/provenance_repository"},
	{"nifi.python.processor.dir", "/var/lib/nifi-minifi-cpp/minifi-python/"},
	{"nifi.extension.path", "/usr/lib64/nifi-minifi-cpp/extensions/*"},
}

var defaultLogProperties = []property{
	{"appender.stderr", "stderr"},
	{"logger.root", "INFO,stderr"},
	{"logger.org::apache::nifi::minifi", "INFO,stderr"},
	{"spdlog.pattern", "[%Y-%m-%d %H:%M:%S.%e] [%n] [%l] %v"},
}

// propertySet is an insertion-ordered key/value set rendered as a conf file.
type propertySet struct {
	p *properties.Properties
}

func newPropertySet(defaults ...[]property) *propertySet {
	p := properties.NewProperties()
	p.DisableExpansion = true
	s := &propertySet{p: p}
	for _, set := range defaults {
		for _, kv := range set {
			s.Set(kv.key, kv.value)
		}
	}
	return s
}

func (s *propertySet) Set(key, value string) {
	// Expansion is disabled, so Set cannot fail.
	_, _, _ = s.p.Set(key, value)
}

func (s *propertySet) Get(key string) (string, bool) {
	return s.p.Get(key)
}

func (s *propertySet) Delete(key string) {
	s.p.Delete(key)
}

// Merge copies every key of other into s, overwriting existing values.
func (s *propertySet) Merge(other *propertySet) {
	for _, k := range other.p.Keys() {
		v, _ := other.p.Get(k)
		s.Set(k, v)
	}
}

// Render writes key=value lines in insertion order. Keys such as
// logger.org::apache::nifi::minifi are written unescaped, the way the agent reads them.
func (s *propertySet) Render() string {
	var b strings.Builder
	for _, k := range s.p.Keys() {
		v, _ := s.p.Get(k)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String()
}
