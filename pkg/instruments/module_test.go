package instruments

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleModule = `BT-Lab ASCII FILE
Nb header lines : 10

Modulo Bat

Acquisition started on : 06/15/2022 10:00:00.000
Ns                  0         1         2         3
ctrl_type           CC        CC        Loop      CC
ctrl1_val           0.500     0.500     10.000    1.000
charge/discharge    Charge    Discharge Charge    Charge
mode	ox/red	error	control	Ns changes	counter	Ns	I Range	time/s	control/V/mA	Ewe/V	I/mA
1	1	0	0	0	0	0	10	0	0.5	1.00	500
1	1	0	0	0	0	0	10	10	0.5	1.10	500
1	1	0	0	0	0	0	10	20	0.5	1.20	500
1	0	0	0	0	0	1	10	30	0.5	1.10	-500
1	0	0	0	0	0	1	10	40	0.5	1.00	-500
1	0	0	0	0	0	1	10	50	0.5	0.90	-500
1	1	0	0	0	0	3	10	60	1.0	1.00	1000
1	1	0	0	0	0	3	10	70	1.0	1.10	1000
1	1	0	0	0	0	3	10	80	1.0	1.20	1000
`

func TestParseBatteryModule(t *testing.T) {
	exp, err := ParseBatteryModule(strings.NewReader(sampleModule))
	require.NoError(t, err)

	assert.Equal(t, []float64{0.5, 1.0}, exp.Currents())
	steps := exp.Steps()
	require.Len(t, steps, 2)

	// First rate: one full charge/discharge cycle.
	require.Equal(t, 1, steps[0].Len())
	c0, err := steps[0].Get(0)
	require.NoError(t, err)
	require.NotNil(t, c0.Charge())
	require.NotNil(t, c0.Discharge())
	assert.Equal(t, []float64{0, 10, 20}, c0.Charge().Time())
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, c0.Charge().Current())

	// Second rate ends with an unpaired charge, kept as a charge-only cycle.
	require.Equal(t, 1, steps[1].Len())
	c1, err := steps[1].Get(0)
	require.NoError(t, err)
	require.NotNil(t, c1.Charge())
	assert.Nil(t, c1.Discharge())
	assert.Equal(t, []float64{1.0, 1.0, 1.0}, c1.Charge().Current())
}

func TestParseBatteryModuleEfficiencies(t *testing.T) {
	exp, err := ParseBatteryModule(strings.NewReader(sampleModule))
	require.NoError(t, err)

	ce := exp.CoulombEfficiencies()
	require.Len(t, ce, 2)
	assert.InDelta(t, 100, ce[0], 1e-9, "symmetric current profile must give 100%")
}

func TestParseBatteryModuleMissingHeader(t *testing.T) {
	_, err := ParseBatteryModule(strings.NewReader("BT-Lab ASCII FILE\n"))
	assert.Error(t, err)
}

func TestParseBatteryModuleUndeclaredStep(t *testing.T) {
	broken := `BT-Lab ASCII FILE
Acquisition started on : 06/15/2022 10:00:00
Ns                  0
ctrl_type           CC
ctrl1_val           0.500
charge/discharge    Charge
mode	ox/red	error	control	Ns changes	counter	Ns	I Range	time/s	control/V/mA	Ewe/V	I/mA
1	1	0	0	0	0	9	10	0	0.5	1.00	500
1	1	0	0	0	0	9	10	10	0.5	1.10	500
`
	_, err := ParseBatteryModule(strings.NewReader(broken))
	assert.Error(t, err)
}
