package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nhle/lepinet/internal/app"
	"github.com/nhle/lepinet/internal/auth"
	"github.com/nhle/lepinet/internal/explore"
	"github.com/nhle/lepinet/internal/model"
	"github.com/nhle/lepinet/internal/theme"
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Find observation hotspots",
}

var exploreHotspotsCmd = &cobra.Command{
	Use:   "hotspots",
	Short: "List hotspots around a position or place",
	Example: `  lepinet explore hotspots --near "Sinharaja Forest" --dates last3days
  lepinet explore hotspots --lat 7.29 --lng 80.63 --distance 5km --species "Common Rose"`,
	RunE: withApp(runExploreHotspots),
}

var exploreSpeciesCmd = &cobra.Command{
	Use:   "species",
	Short: "List every species recorded so far",
	RunE:  withApp(runExploreSpecies),
}

var exploreGeocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Look up the coordinates of a place",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withApp(runExploreGeocode),
}

var (
	exploreNear     string
	exploreLat      float64
	exploreLng      float64
	exploreDistance string
	exploreSpecies  string
	exploreDates    string
	exploreStart    string
	exploreEnd      string
	exploreHeat     bool
)

func init() {
	f := exploreHotspotsCmd.Flags()
	f.StringVar(&exploreNear, "near", "", "place name to search around")
	f.Float64Var(&exploreLat, "lat", 7.8731, "latitude of the search center")
	f.Float64Var(&exploreLng, "lng", 80.7718, "longitude of the search center")
	f.StringVar(&exploreDistance, "distance", "", "radius: 5km, 10km or a number of km")
	f.StringVar(&exploreSpecies, "species", explore.AllSpecies, "species name or all")
	f.StringVar(&exploreDates, "dates", "last7days", "last3days, last7days, custom or all")
	f.StringVar(&exploreStart, "from", "", "start date for --dates custom (YYYY-MM-DD)")
	f.StringVar(&exploreEnd, "to", "", "end date for --dates custom (YYYY-MM-DD)")
	f.BoolVar(&exploreHeat, "heat", false, "also print every record as a heat point")
	exploreHotspotsCmd.MarkFlagsMutuallyExclusive("near", "lat")
	exploreHotspotsCmd.MarkFlagsMutuallyExclusive("near", "lng")

	exploreCmd.AddCommand(exploreHotspotsCmd, exploreSpeciesCmd, exploreGeocodeCmd)
}

func runExploreHotspots(cmd *cobra.Command, args []string, a *app.App) error {
	if a.Auth.Owner() == "" {
		return auth.ErrNotSignedIn
	}

	filter, err := explore.ParseDateFilter(exploreDates)
	if err != nil {
		return err
	}
	distance := exploreDistance
	if distance == "" && a.Config.Explore.DefaultRadiusKm > 0 {
		distance = fmt.Sprint(a.Config.Explore.DefaultRadiusKm)
	}
	radius, err := explore.ParseDistance(distance)
	if err != nil {
		return err
	}

	center := model.GeoPoint{Latitude: exploreLat, Longitude: exploreLng}
	if exploreNear != "" {
		place, err := a.Explore.Geocode(cmd.Context(), exploreNear)
		if err != nil {
			return err
		}
		center = place.Point
		fmt.Fprintln(cmd.ErrOrStderr(), theme.HelpStyle.Render("Around "+place.Address))
	}

	res, err := a.Explore.Hotspots(cmd.Context(), explore.Query{
		Center:   center,
		RadiusKm: radius,
		Species:  exploreSpecies,
		Filter:   filter,
		Start:    exploreStart,
		End:      exploreEnd,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	field(w, "Hotspots", humanize.Comma(int64(res.HotspotCount)))
	field(w, "Species", humanize.Comma(int64(res.SpeciesCount)))
	field(w, "Records", humanize.Comma(int64(len(res.AllRecords))))
	for _, h := range res.Hotspots {
		fmt.Fprintf(w, "%9.5f, %10.5f  %4d records  %s\n",
			h.Latitude, h.Longitude, h.RecordCount, strings.Join(h.Species, ", "))
	}
	if exploreHeat {
		for _, p := range res.HeatPoints() {
			fmt.Fprintf(w, "%.6f,%.6f,%g\n", p.Latitude, p.Longitude, p.Weight)
		}
	}
	return nil
}

func runExploreSpecies(cmd *cobra.Command, args []string, a *app.App) error {
	names, err := a.Explore.Species(cmd.Context())
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}

func runExploreGeocode(cmd *cobra.Command, args []string, a *app.App) error {
	place, err := a.Explore.Geocode(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	field(cmd.OutOrStdout(), "Address", place.Address)
	field(cmd.OutOrStdout(), "Position", formatPoint(&place.Point))
	return nil
}
