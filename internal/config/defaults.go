package config

// DefaultThresholds is the threshold table for the cooling/grinding stage.
// Several upper bounds sit far above any plausible sensor reading (14000°C
// clinker inlet, 950% separator efficiency); they are carried as configured
// rather than corrected here, since operators tune them through the
// override store.
func DefaultThresholds() map[string]ThresholdRange {
	return map[string]ThresholdRange{
		"Clinker_Inlet_Temperature_C":           {Min: 1250, Max: 14000, Enabled: true},
		"Clinker_Outlet_Temperature_C":          {Min: 60, Max: 80, Enabled: true},
		"Cooling_Air_Flow_Nm3min":               {Min: 400, Max: 6000, Enabled: true},
		"Secondary_Air_Temperature_C":           {Min: 800, Max: 10000, Enabled: true},
		"Grate_Speed_strokes_min":               {Min: 8, Max: 180, Enabled: true},
		"Clinker_Production_Rate_tph":           {Min: 100, Max: 1600, Enabled: true},
		"Cement_Mill_Power_kW":                  {Min: 1800, Max: 25000, Enabled: true},
		"Cement_Fineness_Blaine_m2kg":           {Min: 300, Max: 4000, Enabled: true},
		"Cement_Fineness_45um_Percent_Retained": {Min: 5, Max: 150, Enabled: true},
		"Separator_Efficiency_Percent":          {Min: 75, Max: 950, Enabled: true},
		"Gypsum_Addition_Percent":               {Min: 3, Max: 50, Enabled: true},
		"Clinker_Feed_Rate_tph":                 {Min: 100, Max: 1500, Enabled: true},
		"Under_Grate_Pressure_mbar":             {Min: 10, Max: 300, Enabled: true},
	}
}

// DefaultMessages maps each parameter to its spoken/SMS alert template.
// {value}, {min} and {max} are substituted at alert time.
func DefaultMessages() map[string]string {
	return map[string]string{
		"Clinker_Inlet_Temperature_C":           "Alert! Clinker inlet temperature is {value}°C, outside safe range {min}–{max}°C. Check kiln conditions immediately.",
		"Clinker_Outlet_Temperature_C":          "Alert! Clinker outlet temperature is {value}°C, outside safe range {min}–{max}°C. Check cooling system.",
		"Cooling_Air_Flow_Nm3min":               "Alert! Cooling air flow is {value} cubic meters per minute, outside safe range {min}–{max}. Verify cooling system.",
		"Secondary_Air_Temperature_C":           "Alert! Secondary air temperature is {value}°C, outside safe range {min}–{max}°C. Check preheater.",
		"Grate_Speed_strokes_min":               "Alert! Grate speed is {value} strokes per minute, outside safe range {min}–{max}. Inspect grate mechanism.",
		"Clinker_Production_Rate_tph":           "Alert! Clinker production rate is {value} tons per hour, outside target range {min}–{max}. Adjust feed rate.",
		"Cement_Mill_Power_kW":                  "Alert! Cement mill power is {value} kilowatts, outside normal range {min}–{max}. Check for grinding issues.",
		"Cement_Fineness_Blaine_m2kg":           "Alert! Cement fineness is {value} m²/kg, outside target range {min}–{max}. Adjust mill operation.",
		"Cement_Fineness_45um_Percent_Retained": "Alert! Cement 45 micron residue is {value} percent, outside range {min}–{max}. Check separator.",
		"Separator_Efficiency_Percent":          "Alert! Separator efficiency is {value} percent, below target range {min}–{max}. Clean separator.",
		"Gypsum_Addition_Percent":               "Alert! Gypsum addition is {value} percent, outside range {min}–{max}. Verify dosing.",
		"Clinker_Feed_Rate_tph":                 "Alert! Clinker feed rate is {value} tons per hour, outside range {min}–{max}. Adjust feed.",
		"Under_Grate_Pressure_mbar":             "Alert! Under grate pressure is {value} mbar, outside range {min}–{max}. Check grate conditions.",
	}
}
