package properties

type Class uint8

const (
	ClassNoData Class = iota
	ClassRice
	ClassUrbanTree
	ClassWater
	ClassOther
)

// Classes lists every class in raster code order.
var Classes = []Class{ClassNoData, ClassRice, ClassUrbanTree, ClassWater, ClassOther}

var classNames = map[Class]string{
	ClassNoData:    "nodata",
	ClassRice:      "rice",
	ClassUrbanTree: "trees",
	ClassWater:     "water",
	ClassOther:     "other",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

type Color struct {
	R, G, B uint8
}

// ColorMap is written as the palette of classification rasters.
var ColorMap = map[Class]Color{
	ClassNoData:    {0, 0, 0},
	ClassRice:      {255, 235, 0},
	ClassUrbanTree: {34, 139, 34},
	ClassWater:     {30, 90, 255},
	ClassOther:     {180, 180, 180},
}
