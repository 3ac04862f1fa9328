package web

import (
	"testing"

	"github.com/crewjam/saml"
)

func assertionWithAttrs(nameID string, attrs map[string]string) *saml.Assertion {
	a := &saml.Assertion{}
	if nameID != "" {
		a.Subject = &saml.Subject{NameID: &saml.NameID{Value: nameID}}
	}
	if len(attrs) > 0 {
		stmt := saml.AttributeStatement{}
		for name, value := range attrs {
			stmt.Attributes = append(stmt.Attributes, saml.Attribute{
				Name:   name,
				Values: []saml.AttributeValue{{Value: value}},
			})
		}
		a.AttributeStatements = []saml.AttributeStatement{stmt}
	}
	return a
}

func TestExtractSubject(t *testing.T) {
	t.Run("email attribute preferred over NameID", func(t *testing.T) {
		a := assertionWithAttrs("opaque-id-123", map[string]string{
			"email":       "alice@contoso.com",
			"displayName": "Alice Example",
		})
		email, name, attrs := extractSubject(a)
		if email != "alice@contoso.com" {
			t.Errorf("email = %q", email)
		}
		if name != "Alice Example" {
			t.Errorf("name = %q", name)
		}
		if attrs["email"] != "alice@contoso.com" {
			t.Errorf("attrs = %v", attrs)
		}
	})

	t.Run("attribute names are case-insensitive", func(t *testing.T) {
		a := assertionWithAttrs("", map[string]string{
			"UserPrincipalName": "bob@fabrikam.com",
		})
		email, _, _ := extractSubject(a)
		if email != "bob@fabrikam.com" {
			t.Errorf("email = %q", email)
		}
	})

	t.Run("mail attribute accepted", func(t *testing.T) {
		a := assertionWithAttrs("", map[string]string{"mail": "c@d.example"})
		if email, _, _ := extractSubject(a); email != "c@d.example" {
			t.Errorf("email = %q", email)
		}
	})

	t.Run("NameID fallback when it looks like an email", func(t *testing.T) {
		a := assertionWithAttrs("carol@contoso.com", nil)
		email, _, attrs := extractSubject(a)
		if email != "carol@contoso.com" {
			t.Errorf("email = %q", email)
		}
		if attrs != nil {
			t.Errorf("attrs = %v, want nil", attrs)
		}
	})

	t.Run("opaque NameID is not an email", func(t *testing.T) {
		a := assertionWithAttrs("AAdzZWNyZXQxMjM=", nil)
		if email, _, _ := extractSubject(a); email != "" {
			t.Errorf("email = %q, want empty", email)
		}
	})

	t.Run("friendly names are indexed too", func(t *testing.T) {
		a := &saml.Assertion{
			AttributeStatements: []saml.AttributeStatement{{
				Attributes: []saml.Attribute{{
					Name:         "urn:oid:0.9.2342.19200300.100.1.3",
					FriendlyName: "mail",
					Values:       []saml.AttributeValue{{Value: "dave@contoso.com"}},
				}},
			}},
		}
		if email, _, _ := extractSubject(a); email != "dave@contoso.com" {
			t.Errorf("email = %q", email)
		}
	})
}

func TestSlugFromPath(t *testing.T) {
	cases := []struct {
		path, prefix, want string
	}{
		{"/saml2/authenticate/okta", "/saml2/authenticate/", "okta"},
		{"/saml2/authenticate/", "/saml2/authenticate/", ""},
		{"/saml2/authenticate/okta/extra", "/saml2/authenticate/", ""},
		{"/login/saml2/sso/azure", "/login/saml2/sso/", "azure"},
	}
	for _, tc := range cases {
		if got := slugFromPath(tc.path, tc.prefix); got != tc.want {
			t.Errorf("slugFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
