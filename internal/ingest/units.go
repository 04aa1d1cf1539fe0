package ingest

import "math"

const mmPerInch = 0.0393701

func kelvinToF(k float64) float64 { return (k-273.15)*9.0/5.0 + 32.0 }

func cToF(c float64) float64 { return c*9.0/5.0 + 32.0 }

func mmToInches(mm float64) float64 { return mm * mmPerInch }

func metersToInches(m float64) float64 { return m * 39.3701 }

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
