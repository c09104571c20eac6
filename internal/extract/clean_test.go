package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanRole(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		title   string
		company string
		want    string
	}{
		{
			name:    "company prefix with req id and state",
			title:   "Acme — Senior Software Engineer – Req#8932, CA",
			company: "Acme",
			want:    "Senior Software Engineer",
		},
		{
			name:    "trailing city state",
			title:   "Senior SWE - New York, NY",
			company: "",
			want:    "Senior SWE",
		},
		{
			name:    "company suffix",
			title:   "Staff Engineer - Globex",
			company: "Globex",
			want:    "Staff Engineer",
		},
		{
			name:    "html tags and entities",
			title:   "<b>Platform &amp; Infrastructure Engineer</b>",
			company: "",
			want:    "Platform & Infrastructure Engineer",
		},
		{
			name:    "emoji stripped",
			title:   "Backend Engineer ✨",
			company: "",
			want:    "Backend Engineer",
		},
		{
			name:    "bare numeric job id",
			title:   "Account Executive 402918",
			company: "",
			want:    "Account Executive",
		},
		{
			name:    "jr requisition",
			title:   "Data Scientist - JR 12345",
			company: "",
			want:    "Data Scientist",
		},
		{
			name:    "empty",
			title:   "",
			company: "Acme",
			want:    "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, CleanRole(tc.title, tc.company))
		})
	}
}

func TestTitleCaseSlug(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Acme Corp", TitleCaseSlug("acme-corp"))
	require.Equal(t, "Mega Corp", TitleCaseSlug("mega_corp"))
	require.Equal(t, "Acme", TitleCaseSlug("acme"))
	require.Equal(t, "", TitleCaseSlug(""))
}

func TestSplitCompanyRole(t *testing.T) {
	t.Parallel()

	company, role, ok := SplitCompanyRole("Globex – Staff Engineer")
	require.True(t, ok)
	require.Equal(t, "Globex", company)
	require.Equal(t, "Staff Engineer", role)

	_, _, ok = SplitCompanyRole("Staff Engineer")
	require.False(t, ok)

	_, _, ok = SplitCompanyRole("well-known role")
	require.False(t, ok)
}
