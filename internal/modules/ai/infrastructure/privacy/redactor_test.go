package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactor_Ingest(t *testing.T) {
	r := NewRedactor(nil, false)

	cases := []struct {
		name     string
		raw      string
		want     string
		wantTags []Category
	}{
		{
			name:     "email",
			raw:      "Escríbeme a ana.garcia@example.com mañana",
			want:     "Escríbeme a [REDACTED_EMAIL] mañana",
			wantTags: []Category{CategoryEmail},
		},
		{
			name:     "luhn valid card",
			raw:      "la tarjeta 4111 1111 1111 1111 fue usada",
			want:     "la tarjeta [REDACTED_CARD_NUMBER] fue usada",
			wantTags: []Category{CategoryCardNumber},
		},
		{
			name: "luhn invalid card is kept",
			raw:  "pedido 1234567812345678",
			want: "pedido 1234567812345678",
		},
		{
			name:     "ipv4",
			raw:      "tráfico desde 10.20.30.40 hacia fuera",
			want:     "tráfico desde [REDACTED_IP_ADDRESS] hacia fuera",
			wantTags: []Category{CategoryIPAddress},
		},
		{
			name: "octet out of range",
			raw:  "versión 300.1.1.1",
			want: "versión 300.1.1.1",
		},
		{
			name:     "dni",
			raw:      "mi DNI es 12345678Z",
			want:     "mi DNI es [REDACTED_NATIONAL_ID]",
			wantTags: []Category{CategoryNationalID},
		},
		{
			name:     "phone",
			raw:      "llámame al +34 600 123 456",
			want:     "llámame al [REDACTED_PHONE]",
			wantTags: []Category{CategoryPhone},
		},
		{
			name: "timestamp is not a phone",
			raw:  "alerta el 2026-01-10 10:00",
			want: "alerta el 2026-01-10 10:00",
		},
		{
			name:     "name keeps the prefix",
			raw:      "Hola, me llamo Lucía Fernández y trabajo en IT",
			want:     "Hola, me llamo [REDACTED_NAME] y trabajo en IT",
			wantTags: []Category{CategoryName},
		},
		{
			name:     "passport value only",
			raw:      "passport number: X1234567",
			want:     "passport number: [REDACTED_PASSPORT]",
			wantTags: []Category{CategoryPassport},
		},
		{
			name:     "dob value only",
			raw:      "fecha de nacimiento: 01/02/1980",
			want:     "fecha de nacimiento: [REDACTED_DOB]",
			wantTags: []Category{CategoryDOB},
		},
		{
			name:     "spanish address",
			raw:      "la oficina está en calle Mayor 5",
			want:     "la oficina está en [REDACTED_ADDRESS]",
			wantTags: []Category{CategoryAddress},
		},
		{
			name: "cve id is not a phone",
			raw:  "¿Estamos expuestos a CVE-2021-44228 en los servidores?",
			want: "¿Estamos expuestos a CVE-2021-44228 en los servidores?",
		},
		{
			name: "lower case cve id",
			raw:  "parche para cve-2023-23397 en Outlook",
			want: "parche para cve-2023-23397 en Outlook",
		},
		{
			name: "ticket id is not a phone",
			raw:  "seguimiento del INC-2024-000123 abierto ayer",
			want: "seguimiento del INC-2024-000123 abierto ayer",
		},
		{
			name: "bare year serial is not a phone",
			raw:  "referencia 2024-000123",
			want: "referencia 2024-000123",
		},
		{
			name: "role after soy is kept",
			raw:  "Soy Analista de seguridad en el SOC",
			want: "Soy Analista de seguridad en el SOC",
		},
		{
			name:     "full name after soy",
			raw:      "Hola, soy Lucía Fernández del equipo rojo",
			want:     "Hola, soy [REDACTED_NAME] del equipo rojo",
			wantTags: []Category{CategoryName},
		},
		{
			name: "no pii",
			raw:  "¿Cuál es el riesgo de un CVE crítico en el VPN?",
			want: "¿Cuál es el riesgo de un CVE crítico en el VPN?",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, tags := r.Ingest(tc.raw)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantTags, tags)
		})
	}
}

func TestRedactor_EmailNeverKept(t *testing.T) {
	r := NewRedactor(nil, true)
	raw := "contact soc@corp.io and backup@corp.io"
	got, tags := r.Ingest(raw)
	assert.NotContains(t, got, "soc@corp.io")
	assert.NotContains(t, got, "backup@corp.io")
	assert.Equal(t, []Category{CategoryEmail}, tags)
	assert.False(t, r.RetainRaw(tags))
}

func TestRedactor_ExemptCategories(t *testing.T) {
	r := NewRedactor([]string{"ip_address"}, true)

	got, tags := r.Ingest("bloquea 192.168.1.10 ya")
	assert.Equal(t, "bloquea 192.168.1.10 ya", got)
	assert.Equal(t, []Category{CategoryIPAddress}, tags)
	assert.True(t, r.RetainRaw(tags))

	got, tags = r.Ingest("bloquea 192.168.1.10 y avisa a ops@corp.io")
	assert.Equal(t, "bloquea 192.168.1.10 y avisa a [REDACTED_EMAIL]", got)
	assert.Equal(t, []Category{CategoryEmail, CategoryIPAddress}, tags)
	assert.False(t, r.RetainRaw(tags))
	assert.Equal(t, "email,ip_address", JoinTags(tags))
}
