package instruments

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echemtools/cyclekit"
)

const sampleDTA = `EXPLAIN
TAG	CHGDISCHG
TITLE	LABEL	Charge cycle	Test identifier
DATE	LABEL	6/15/2022	Date
TIME	LABEL	10:30:00	Time
ISTEP1	QUANT	5.00000E-001	Step 1 Current (A)
CURVE	TABLE	5
Pt	T	Vf	Im	Vu	Temp
#	s	V vs. Ref.	A	V	deg C
0	0	1.0500	0.5	0	25
1	1	1.1000	0.5	0	25
2	2	1.1500	0.5	0	25
3	3	1.2000	0.5	0	25
4	4	1.2500	0.5	0	25
`

const sampleDischargeDTA = `EXPLAIN
DATE	LABEL	6/15/2022	Date
TIME	LABEL	11:00:00	Time
ISTEP1	QUANT	-5.00000E-001	Step 1 Current (A)
CURVE	TABLE	4
Pt	T	Vf	Im
#	s	V vs. Ref.	A
0	1	1.2000	-0.5
1	2	1.1500	-0.5
2	3	1.1000	-0.5
3	4	1.0500	-0.5
`

const sampleEuropeanDTA = `EXPLAIN
DATE	LABEL	15/06/2022	Date
TIME	LABEL	10:30:00	Time
CURVE	TABLE	3
Pt	T	Vf	Im
#	s	V	A
0	1	1,0500	0,5
1	2	1,1000	0,5
2	3	1,1500	0,5
`

const conditioningOnlyDTA = `EXPLAIN
DATE	LABEL	6/15/2022	Date
TIME	LABEL	10:30:00	Time
ISTEP1	QUANT	5.00000E-001	Step 1 Current (A)
CURVE	TABLE	2
Pt	T	Vf	Im
#	s	V vs. Ref.	A
0	0	1.0500	0.5
1	0	1.0600	0.5
`

func TestParseDTACharge(t *testing.T) {
	h, err := ParseDTA(strings.NewReader(sampleDTA))
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, cyclekit.Charge, h.Type())
	assert.Equal(t, time.Date(2022, 6, 15, 10, 30, 0, 0, time.UTC), h.Timestamp())

	// The t=0 conditioning row is dropped and the time base re-zeroed.
	assert.Equal(t, []float64{0, 1, 2, 3}, h.Time())
	assert.Equal(t, []float64{1.10, 1.15, 1.20, 1.25}, h.Voltage())
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5}, h.Current())
}

func TestParseDTADischargeFromStepCurrentSign(t *testing.T) {
	h, err := ParseDTA(strings.NewReader(sampleDischargeDTA))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, cyclekit.Discharge, h.Type())
	assert.Equal(t, time.Date(2022, 6, 15, 11, 0, 0, 0, time.UTC), h.Timestamp())
}

func TestParseDTAEuropeanFormat(t *testing.T) {
	h, err := ParseDTA(strings.NewReader(sampleEuropeanDTA))
	require.NoError(t, err)
	require.NotNil(t, h)

	// No step-current header: the type falls back to the sample sign.
	assert.Equal(t, cyclekit.Charge, h.Type())
	// Decimal commas flip the date order to day/month/year.
	assert.Equal(t, time.Date(2022, 6, 15, 10, 30, 0, 0, time.UTC), h.Timestamp())
	assert.Equal(t, []float64{1.05, 1.10, 1.15}, h.Voltage())
}

func TestParseDTASkipsConditioningOnlyFile(t *testing.T) {
	h, err := ParseDTA(strings.NewReader(conditioningOnlyDTA))
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestParseDTAWithoutCurveSection(t *testing.T) {
	_, err := ParseDTA(strings.NewReader("EXPLAIN\nDATE\tLABEL\t6/15/2022\tDate\n"))
	assert.Error(t, err)
}
